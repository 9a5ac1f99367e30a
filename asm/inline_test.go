package asm

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Inline code generator tests
// ---------------------------------------------------------------------------

// Non-parameter locals shift by the difference in parameter slot counts.
func TestOverwriteRemapsLocals(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "overwriteC1", "()"+stringDesc,
			[]classfile.Annotation{ann(annOverwrite, "method", "testC1")},
			[]classfile.Insn{
				&classfile.LdcInsn{Value: "x"},
				&classfile.VarInsn{Opcode: classfile.OpAstore, Index: 0},
				&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
				&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
			}).
		build(t)

	node := transformTest(t, mx)
	m := node.Method("testC1", "("+stringDesc+")"+stringDesc)
	var vars []*classfile.VarInsn
	for _, in := range m.Code.All() {
		if v, ok := in.(*classfile.VarInsn); ok {
			vars = append(vars, v)
		}
	}
	// The handler's local 0 collides with the target's parameter slot
	// and must shift to 1.
	if len(vars) != 2 || vars[0].Index != 1 || vars[1].Index != 1 {
		t.Fatalf("locals not shifted: %+v", vars)
	}
	if m.MaxLocals < 2 {
		t.Errorf("MaxLocals = %d, want >= 2", m.MaxLocals)
	}
}

// A singleton mixin's instance call collapses to invokestatic when its
// body lands in a static frame: the INSTANCE push is excised and the
// consuming invocation promoted.
func TestSingletonPromotion(t *testing.T) {
	mx := newMixin(testClassName).singleton().
		method(classfile.AccPublic, "helper", "()"+stringDesc, nil,
			[]classfile.Insn{
				&classfile.LdcInsn{Value: "h"},
				&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
			}).
		method(classfile.AccPublic, "overwriteC1", "("+stringDesc+")"+stringDesc,
			[]classfile.Annotation{ann(annOverwrite, "method", "testC1")},
			[]classfile.Insn{
				&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: mixinName, Name: "INSTANCE", Desc: "L" + mixinName + ";"},
				&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: mixinName, Name: "helper", Desc: "()" + stringDesc},
				&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
			}).
		build(t)

	node := transformTest(t, mx)
	m := node.Method("testC1", "("+stringDesc+")"+stringDesc)
	ops := realOps(m)
	want := []string{"invokestatic", "areturn"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	call := m.Code.All()[0].(*classfile.MethodInsn)
	if call.Opcode != classfile.OpInvokestatic || call.Owner != mixinName || call.Name != "helper" {
		t.Errorf("call = %s %s.%s", classfile.OpcodeName(call.Opcode), call.Owner, call.Name)
	}
}

// The promotion scan tracks stack depth, so an INSTANCE push consumed by
// a later invocation with intervening arguments still pairs correctly.
func TestSingletonPromotionWithArguments(t *testing.T) {
	mx := newMixin(testClassName).singleton().
		method(classfile.AccPublic, "helper", "("+stringDesc+")"+stringDesc, nil, nil).
		method(classfile.AccPublic, "overwriteC1", "("+stringDesc+")"+stringDesc,
			[]classfile.Annotation{ann(annOverwrite, "method", "testC1")},
			[]classfile.Insn{
				&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: mixinName, Name: "INSTANCE", Desc: "L" + mixinName + ";"},
				&classfile.VarInsn{Opcode: classfile.OpAload, Index: 1},
				&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: mixinName, Name: "helper", Desc: "(" + stringDesc + ")" + stringDesc},
				&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
			}).
		build(t)

	node := transformTest(t, mx)
	m := node.Method("testC1", "("+stringDesc+")"+stringDesc)
	ops := realOps(m)
	want := []string{"aload", "invokestatic", "areturn"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	// The handler's parameter (slot 1 of the instance source frame)
	// pairs with the static target's slot 0.
	if v := m.Code.All()[0].(*classfile.VarInsn); v.Index != 0 {
		t.Errorf("parameter slot = %d, want 0", v.Index)
	}
}

// Return-type adaptation drops the handler value and substitutes a
// type-appropriate default.
func TestAdaptReturns(t *testing.T) {
	list := classfile.NewInsnList()
	list.Append(
		&classfile.LdcInsn{Value: "v"},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)
	adaptReturns(list, classfile.ObjectType("java/lang/String"), classfile.Int)
	ops := make([]string, 0, list.Len())
	for _, in := range list.All() {
		ops = append(ops, classfile.OpcodeName(in.Op()))
	}
	want := []string{"ldc", "pop", "iconst_0", "ireturn"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", ops, want)
		}
	}
}

// Re-reading the handler from the mixin's own bytes leaves the
// registry's parsed tree untouched.
func TestHandlerBodyIsolation(t *testing.T) {
	mx := newMixin(testClassName).
		method(classfile.AccPublic|classfile.AccStatic, "overwriteB0", "()"+stringDesc,
			[]classfile.Annotation{ann(annOverwrite, "method", "testB0")},
			[]classfile.Insn{&classfile.LdcInsn{Value: "O"}, &classfile.SimpleInsn{Opcode: classfile.OpAreturn}}).
		build(t)

	before := mx.Node.Method("overwriteB0", "").Code.Len()
	transformTest(t, mx)
	after := mx.Node.Method("overwriteB0", "").Code.Len()
	if before != after {
		t.Fatalf("mixin tree mutated during transform: %d → %d", before, after)
	}
}

func TestStackDelta(t *testing.T) {
	tests := []struct {
		insn  classfile.Insn
		delta int
	}{
		{&classfile.SimpleInsn{Opcode: classfile.OpDup}, 1},
		{&classfile.SimpleInsn{Opcode: classfile.OpPop2}, -2},
		{&classfile.LdcInsn{Value: int64(1)}, 2},
		{&classfile.LdcInsn{Value: "s"}, 1},
		{&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: "x", Name: "f", Desc: "J"}, 2},
		{&classfile.FieldInsn{Opcode: classfile.OpPutfield, Owner: "x", Name: "f", Desc: "I"}, -2},
		{&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: "x", Name: "m", Desc: "(II)I"}, -2},
		{&classfile.MethodInsn{Opcode: classfile.OpInvokestatic, Owner: "x", Name: "m", Desc: "()V"}, 0},
	}
	for _, tt := range tests {
		got, err := stackDelta(tt.insn)
		if err != nil {
			t.Fatalf("%T: %v", tt.insn, err)
		}
		if got != tt.delta {
			t.Errorf("%T: delta = %d, want %d", tt.insn, got, tt.delta)
		}
	}
	if _, err := stackDelta(&classfile.JumpInsn{Opcode: classfile.OpGoto}); err == nil {
		t.Errorf("control flow must stop the linear scan")
	}
}
