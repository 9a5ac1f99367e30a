package asm

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Driver and edge-case tests
// ---------------------------------------------------------------------------

// newTarget builds a minimal target class with the given methods.
func newTarget(methods ...*classfile.MethodNode) *classfile.ClassNode {
	return &classfile.ClassNode{
		MajorVersion: classfile.MajorJava8,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         testClassName,
		SuperName:    "java/lang/Object",
		Methods:      methods,
	}
}

func voidMethod(name string, body ...classfile.Insn) *classfile.MethodNode {
	m := &classfile.MethodNode{
		Access: classfile.AccPublic | classfile.AccStatic,
		Name:   name, Desc: "()V",
	}
	m.Code = classfile.NewInsnList()
	m.Code.Append(body...)
	return m
}

func tailMixin(t *testing.T, targetMethod string) *MixinClass {
	t.Helper()
	return newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "onTail", "()V",
			[]classfile.Annotation{ann(annInject,
				"method", targetMethod,
				"target", injectTarget("TAIL"))},
			nil).
		build(t)
}

// An empty body becomes exactly the inject block.
func TestTailInjectEmptyBody(t *testing.T) {
	target := newTarget(voidMethod("empty"))
	ctx := NewTargetClassContext(target, tailMixin(t, "empty"))
	ctx.Apply()
	if !ctx.Changed() {
		t.Fatalf("tail inject did not apply")
	}
	m := target.Method("empty", "()V")
	ops := realOps(m)
	if len(ops) != 1 || ops[0] != "invokestatic" {
		t.Fatalf("ops = %v, want exactly the handler call", ops)
	}
}

// A method that throws on every path gets the call before its last
// instruction.
func TestTailInjectNoReturnFallsBackToEnd(t *testing.T) {
	thrower := voidMethod("boom",
		&classfile.TypeInsn{Opcode: classfile.OpNew, Type: "java/lang/RuntimeException"},
		&classfile.SimpleInsn{Opcode: classfile.OpDup},
		&classfile.MethodInsn{Opcode: classfile.OpInvokespecial, Owner: "java/lang/RuntimeException", Name: "<init>", Desc: "()V"},
		&classfile.SimpleInsn{Opcode: classfile.OpAthrow},
	)
	target := newTarget(thrower)
	ctx := NewTargetClassContext(target, tailMixin(t, "boom"))
	ctx.Apply()
	m := target.Method("boom", "()V")
	ops := realOps(m)
	if ops[len(ops)-1] != "athrow" || ops[len(ops)-2] != "invokestatic" {
		t.Fatalf("ops = %v, want handler call before the final athrow", ops)
	}
}

// Two sequential TAIL injects stack up before the sole return.
func TestTailInjectTwiceBeforeSingleReturn(t *testing.T) {
	target := newTarget(voidMethod("run", &classfile.SimpleInsn{Opcode: classfile.OpReturn}))
	mx := tailMixin(t, "run")
	ctx := NewTargetClassContext(target, mx)
	ctx.Apply()
	ctx2 := NewTargetClassContext(target, mx)
	ctx2.Apply()
	m := target.Method("run", "()V")
	if got := countCalls(m, mixinName, "onTail"); got != 2 {
		t.Fatalf("handler present %d times, want 2", got)
	}
	ops := realOps(m)
	want := []string{"invokestatic", "invokestatic", "return"}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", ops, want)
		}
	}
}

func TestInvokeInjectBeforeAndAfter(t *testing.T) {
	for _, shift := range []string{"BEFORE", "AFTER"} {
		mx := newMixin(testClassName).
			method(classfile.AccPublic|classfile.AccStatic, "around", "()V",
				[]classfile.Annotation{ann(annInject,
					"method", "testC0",
					"target", injectTarget("INVOKE"),
					"at", atAnn(
						"value", "INVOKE",
						"target", "java/io/PrintStream.println("+stringDesc+")V",
						"shift", shiftValue(shift)))},
				nil).
			build(t)
		node := transformTest(t, mx)
		m := node.Method("testC0", "("+stringDesc+")"+stringDesc)
		if got := countCalls(m, mixinName, "around"); got != 1 {
			t.Fatalf("shift %s: handler called %d times, want 1", shift, got)
		}
		if got := countCalls(m, "java/io/PrintStream", "println"); got != 1 {
			t.Fatalf("shift %s: original call must survive, found %d", shift, got)
		}
		insns := m.Code.All()
		var handlerIdx, printlnIdx int
		for i, in := range insns {
			if call, ok := in.(*classfile.MethodInsn); ok {
				if call.Name == "around" {
					handlerIdx = i
				}
				if call.Name == "println" {
					printlnIdx = i
				}
			}
		}
		if shift == "BEFORE" && handlerIdx > printlnIdx {
			t.Errorf("BEFORE handler emitted after the call")
		}
		if shift == "AFTER" && handlerIdx < printlnIdx {
			t.Errorf("AFTER handler emitted before the call")
		}
	}
}

func TestInvokerGeneration(t *testing.T) {
	secret := &classfile.MethodNode{
		Access: classfile.AccPrivate,
		Name:   "secret", Desc: "()" + stringDesc,
		MaxLocals: 1,
	}
	secret.Code = classfile.NewInsnList()
	secret.Code.Append(
		&classfile.LdcInsn{Value: "hidden"},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)
	target := newTarget(secret)

	mx := newMixin(testClassName).
		method(classfile.AccPublic, "callSecret", "()"+stringDesc,
			[]classfile.Annotation{ann(annInvoker, "value", "secret")},
			nil).
		build(t)
	ctx := NewTargetClassContext(target, mx)
	ctx.Apply()

	inv := target.Method("callSecret", "()"+stringDesc)
	if inv == nil {
		t.Fatalf("invoker not generated")
	}
	call := inv.Code.All()[1].(*classfile.MethodInsn)
	if call.Opcode != classfile.OpInvokespecial {
		t.Errorf("private callee must use invokespecial, got %s", classfile.OpcodeName(call.Opcode))
	}
	if inv.Access&classfile.AccSynthetic == 0 {
		t.Errorf("invoker must be synthetic")
	}
}

func TestRemoveSynchronized(t *testing.T) {
	locked := voidMethod("locked",
		&classfile.LdcInsn{Value: "lock"},
		&classfile.SimpleInsn{Opcode: classfile.OpMonitorenter},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)
	locked.Access |= classfile.AccSynchronized
	target := newTarget(locked)

	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "strip", "()V",
			[]classfile.Annotation{ann(annRemoveSynchronized, "method", "locked")},
			nil).
		build(t)
	NewTargetClassContext(target, mx).Apply()

	m := target.Method("locked", "()V")
	if m.Access&classfile.AccSynchronized != 0 {
		t.Errorf("synchronized flag not cleared")
	}
	if countOps(m, classfile.OpMonitorenter) != 0 {
		t.Errorf("monitorenter not stripped")
	}
	if countOps(m, classfile.OpPop) != 1 {
		t.Errorf("monitorenter must become pop")
	}
}

// A directive aimed at a missing method is skipped; the rest of the
// mixin still applies.
func TestMissingTargetSkipsDirectiveOnly(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "ghost", "()V",
			[]classfile.Annotation{ann(annInject, "method", "noSuchMethod", "target", injectTarget("TAIL"))},
			nil).
		method(classfile.AccPublic|classfile.AccStatic, "modRetB0", "("+stringDesc+")"+stringDesc,
			[]classfile.Annotation{ann(annModifyReturnValue, "method", "testB0")},
			nil).
		build(t)

	node := transformTest(t, mx)
	m := node.Method("testB0", "()"+stringDesc)
	if got := countCalls(m, mixinName, "modRetB0"); got != 1 {
		t.Fatalf("surviving directive did not apply")
	}
}

// The non-singleton instance-handler path synthesizes the cached mixin
// instance field with lazy initialization.
func TestInstanceFieldSynthesis(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic, "onTailB0", "()V",
			[]classfile.Annotation{ann(annInject, "method", "testB0", "target", injectTarget("TAIL"))},
			nil).
		build(t)

	node := transformTest(t, mx)
	f := node.Field(instanceFieldPrefix + "TestMixin")
	if f == nil {
		t.Fatalf("instance field not synthesized")
	}
	if f.Access != classfile.AccPrivate|classfile.AccStatic|classfile.AccSynthetic {
		t.Errorf("instance field access = 0x%04X", f.Access)
	}
	if f.Desc != "L"+mixinName+";" {
		t.Errorf("instance field desc = %s", f.Desc)
	}
	m := node.Method("testB0", "()"+stringDesc)
	if got := countOps(m, classfile.OpIfnonnull); got != 1 {
		t.Errorf("lazy init null check missing (%d)", got)
	}
	if got := countCalls(m, mixinName, "<init>"); got != 1 {
		t.Errorf("lazy init constructor call missing (%d)", got)
	}
}
