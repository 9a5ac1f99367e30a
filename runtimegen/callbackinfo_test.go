package runtimegen

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/asm"
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

func TestCallbackInfoGenerates(t *testing.T) {
	data, err := CallbackInfo()
	if err != nil {
		t.Fatalf("CallbackInfo: %v", err)
	}
	node, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("generated class does not parse: %v", err)
	}
	if node.Name != asm.CallbackInfoClass {
		t.Errorf("class name = %s", node.Name)
	}
	if node.SuperName != "java/lang/Object" {
		t.Errorf("super = %s", node.SuperName)
	}

	wantMethods := []struct{ name, desc string }{
		{"<init>", "()V"},
		{"cancel", "()V"},
		{"isCancelled", "()Z"},
		{"setReturnValue", "(Ljava/lang/Object;)V"},
		{"getReturnValue", "()Ljava/lang/Object;"},
	}
	for _, w := range wantMethods {
		m := node.Method(w.name, w.desc)
		if m == nil {
			t.Errorf("method %s%s missing", w.name, w.desc)
			continue
		}
		if m.Code == nil || m.Code.Len() == 0 {
			t.Errorf("method %s%s has no body", w.name, w.desc)
		}
	}
	if f := node.Field("cancelled"); f == nil || f.Desc != "Z" {
		t.Errorf("cancelled field missing or mistyped")
	}
	if f := node.Field("returnValue"); f == nil || f.Desc != "Ljava/lang/Object;" {
		t.Errorf("returnValue field missing or mistyped")
	}
}
