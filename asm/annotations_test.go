package asm

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Directive extraction tests
// ---------------------------------------------------------------------------

func TestExtractInjectDirective(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "onHead", "()V",
			[]classfile.Annotation{ann(annInject,
				"method", "testA0()"+stringDesc,
				"target", injectTarget("HEAD"),
				"cancellable", true)},
			nil).
		build(t)

	if len(mx.Directives) != 1 {
		t.Fatalf("%d directives, want 1", len(mx.Directives))
	}
	d, ok := mx.Directives[0].(*InjectDirective)
	if !ok {
		t.Fatalf("directive is %T", mx.Directives[0])
	}
	if d.Point != PointHead || !d.Cancellable {
		t.Errorf("point=%v cancellable=%v", d.Point, d.Cancellable)
	}
	if d.Key.Name != "testA0" || d.Key.Desc != "()"+stringDesc {
		t.Errorf("key = %v", d.Key)
	}
}

func TestExtractInjectDefaultsToHandlerName(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "testA0", "()V",
			[]classfile.Annotation{ann(annInject, "target", injectTarget("TAIL"))},
			nil).
		build(t)
	d := mx.Directives[0].(*InjectDirective)
	if d.Key.Name != "testA0" || d.Key.Desc != "" {
		t.Errorf("inferred key = %v, want name-only testA0", d.Key)
	}
	if d.Point != PointTail {
		t.Errorf("point = %v", d.Point)
	}
}

func TestExtractInvokePointWithAt(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "onInvoke", "()V",
			[]classfile.Annotation{ann(annInject,
				"method", "testC0",
				"target", injectTarget("INVOKE"),
				"at", atAnn(
					"value", "INVOKE",
					"target", "java/io/PrintStream.println("+stringDesc+")V",
					"shift", shiftValue("AFTER")))},
			nil).
		build(t)
	d := mx.Directives[0].(*InjectDirective)
	if d.Point != PointInvoke {
		t.Fatalf("point = %v", d.Point)
	}
	if d.At.Target != "java/io/PrintStream.println("+stringDesc+")V" {
		t.Errorf("at.target = %q", d.At.Target)
	}
	if d.At.Shift != ShiftAfter {
		t.Errorf("at.shift = %v, want AFTER", d.At.Shift)
	}
}

func TestExtractFieldDirectives(t *testing.T) {
	mx := newMixin(testClassName).
		field(classfile.AccPrivate, "shadow_dynamicString", stringDesc, ann(annShadow)).
		field(classfile.AccPrivate|classfile.AccStatic, "shadow_staticFinalString", stringDesc,
			ann(annShadow), ann(annMutable)).
		build(t)

	var shadows, mutables int
	for _, d := range mx.Directives {
		switch v := d.(type) {
		case *ShadowDirective:
			shadows++
			if v.Field.Name == "shadow_dynamicString" && v.Key.Name != "dynamicString" {
				t.Errorf("shadow_ prefix not stripped: %v", v.Key)
			}
		case *MutableDirective:
			mutables++
			if v.FieldName != "staticFinalString" {
				t.Errorf("mutable field = %q", v.FieldName)
			}
		}
	}
	if shadows != 2 || mutables != 1 {
		t.Errorf("shadows=%d mutables=%d", shadows, mutables)
	}
	if _, ok := mx.shadowFieldTarget("shadow_dynamicString"); !ok {
		t.Errorf("shadow field map not populated")
	}
}

func TestExtractReplaceAll(t *testing.T) {
	mx := newMixin(testClassName).
		classAnn(ann(annReplaceAllMethods, "removeSync", true)).
		build(t)
	if mx.ReplaceAll == nil || !mx.ReplaceAll.RemoveSync {
		t.Fatalf("ReplaceAll = %+v", mx.ReplaceAll)
	}
}

func TestSingletonDetection(t *testing.T) {
	if mx := newMixin(testClassName).singleton().build(t); !mx.Singleton {
		t.Errorf("INSTANCE field of own type must mark the mixin singleton")
	}
	if mx := newMixin(testClassName).build(t); mx.Singleton {
		t.Errorf("plain mixin wrongly detected as singleton")
	}
	// An INSTANCE field of a different type does not count.
	other := newMixin(testClassName).
		field(classfile.AccStatic, "INSTANCE", "Ljava/lang/Object;").
		build(t)
	if other.Singleton {
		t.Errorf("INSTANCE of foreign type must not mark singleton")
	}
}

func TestAccessorFieldNameDerivation(t *testing.T) {
	tests := []struct{ handler, field string }{
		{"getDynamicString", "dynamicString"},
		{"setDynamicString", "dynamicString"},
		{"isEnabled", "enabled"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := accessorFieldName(tt.handler); got != tt.field {
			t.Errorf("accessorFieldName(%q) = %q, want %q", tt.handler, got, tt.field)
		}
	}
}

func TestCopyTargetMapping(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "helper", "()V",
			[]classfile.Annotation{ann(annCopy, "method", "copied")},
			nil).
		build(t)
	if got, ok := mx.copyMethodTarget("helper", "()V"); !ok || got != "copied" {
		t.Errorf("copyMethodTarget = %q, %v", got, ok)
	}
}
