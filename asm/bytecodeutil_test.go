package asm

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Bytecode utility tests
// ---------------------------------------------------------------------------

func TestIsConstantAndValue(t *testing.T) {
	tests := []struct {
		insn  classfile.Insn
		value any
	}{
		{&classfile.SimpleInsn{Opcode: classfile.OpAconstNull}, nil},
		{&classfile.SimpleInsn{Opcode: classfile.OpIconstM1}, int32(-1)},
		{&classfile.SimpleInsn{Opcode: classfile.OpIconst0}, int32(0)},
		{&classfile.SimpleInsn{Opcode: classfile.OpIconst5}, int32(5)},
		{&classfile.SimpleInsn{Opcode: classfile.OpLconst0}, int64(0)},
		{&classfile.SimpleInsn{Opcode: classfile.OpLconst1}, int64(1)},
		{&classfile.SimpleInsn{Opcode: classfile.OpFconst2}, float32(2)},
		{&classfile.SimpleInsn{Opcode: classfile.OpDconst1}, float64(1)},
		{&classfile.IntInsn{Opcode: classfile.OpBipush, Value: 42}, int32(42)},
		{&classfile.IntInsn{Opcode: classfile.OpSipush, Value: -300}, int32(-300)},
		{&classfile.LdcInsn{Value: "hello"}, "hello"},
		{&classfile.LdcInsn{Value: int64(1 << 40)}, int64(1 << 40)},
	}
	for _, tt := range tests {
		if !IsConstant(tt.insn) {
			t.Errorf("%T(%v): IsConstant = false", tt.insn, tt.value)
			continue
		}
		if got := ConstantValue(tt.insn); got != tt.value {
			t.Errorf("%T: ConstantValue = %v, want %v", tt.insn, got, tt.value)
		}
	}
}

// ConstantValue is total on the IsConstant subset: every instruction
// IsConstant accepts yields a value with a stack type.
func TestConstantValueTotalOnConstants(t *testing.T) {
	checkcast := &classfile.TypeInsn{Opcode: classfile.OpCheckcast, Type: "java/lang/String"}
	if !IsConstant(checkcast) {
		t.Fatalf("checkcast-family must classify as constant")
	}
	if _, ok := ConstantValue(checkcast).(classfile.Type); !ok {
		t.Fatalf("checkcast constant must yield a Type")
	}
	if ConstantType(checkcast).Internal() != "java/lang/Class" {
		t.Errorf("class constants occupy java/lang/Class on the stack")
	}

	notConstant := []classfile.Insn{
		&classfile.SimpleInsn{Opcode: classfile.OpDup},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.MethodInsn{Opcode: classfile.OpInvokestatic, Owner: "x", Name: "y", Desc: "()V"},
	}
	for _, in := range notConstant {
		if IsConstant(in) {
			t.Errorf("%T must not classify as constant", in)
		}
	}
}

func TestConstantType(t *testing.T) {
	tests := []struct {
		insn classfile.Insn
		desc string
	}{
		{&classfile.SimpleInsn{Opcode: classfile.OpIconst3}, "I"},
		{&classfile.SimpleInsn{Opcode: classfile.OpLconst0}, "J"},
		{&classfile.LdcInsn{Value: float32(1)}, "F"},
		{&classfile.LdcInsn{Value: 2.5}, "D"},
		{&classfile.LdcInsn{Value: "s"}, "Ljava/lang/String;"},
		{&classfile.IntInsn{Opcode: classfile.OpSipush, Value: 7}, "I"},
	}
	for _, tt := range tests {
		if got := ConstantType(tt.insn).Descriptor(); got != tt.desc {
			t.Errorf("%T: ConstantType = %s, want %s", tt.insn, got, tt.desc)
		}
	}
}

func TestOpcodeSelection(t *testing.T) {
	tests := []struct {
		ty               classfile.Type
		load, store, ret int
	}{
		{classfile.Int, classfile.OpIload, classfile.OpIstore, classfile.OpIreturn},
		{classfile.Boolean, classfile.OpIload, classfile.OpIstore, classfile.OpIreturn},
		{classfile.Long, classfile.OpLload, classfile.OpLstore, classfile.OpLreturn},
		{classfile.Float, classfile.OpFload, classfile.OpFstore, classfile.OpFreturn},
		{classfile.Double, classfile.OpDload, classfile.OpDstore, classfile.OpDreturn},
		{classfile.ObjectType("java/lang/String"), classfile.OpAload, classfile.OpAstore, classfile.OpAreturn},
	}
	for _, tt := range tests {
		if got := LoadOpcode(tt.ty); got != tt.load {
			t.Errorf("%s: LoadOpcode = %s", tt.ty, classfile.OpcodeName(got))
		}
		if got := StoreOpcode(tt.ty); got != tt.store {
			t.Errorf("%s: StoreOpcode = %s", tt.ty, classfile.OpcodeName(got))
		}
		if got := ReturnOpcode(tt.ty); got != tt.ret {
			t.Errorf("%s: ReturnOpcode = %s", tt.ty, classfile.OpcodeName(got))
		}
	}
	if ReturnOpcode(classfile.Void) != classfile.OpReturn {
		t.Errorf("void return opcode")
	}
}

func TestBoxUnbox(t *testing.T) {
	box := Box(classfile.Int)
	if len(box) != 1 {
		t.Fatalf("Box(int) = %d insns", len(box))
	}
	call := box[0].(*classfile.MethodInsn)
	if call.Owner != "java/lang/Integer" || call.Name != "valueOf" || call.Desc != "(I)Ljava/lang/Integer;" {
		t.Errorf("Box(int) = %s.%s%s", call.Owner, call.Name, call.Desc)
	}
	if Box(classfile.ObjectType("java/lang/String")) != nil {
		t.Errorf("references must not box")
	}

	unbox := Unbox(classfile.Long)
	if len(unbox) != 2 {
		t.Fatalf("Unbox(long) = %d insns", len(unbox))
	}
	if cc := unbox[0].(*classfile.TypeInsn); cc.Type != "java/lang/Long" {
		t.Errorf("Unbox(long) casts to %s", cc.Type)
	}
	if call := unbox[1].(*classfile.MethodInsn); call.Name != "longValue" || call.Desc != "()J" {
		t.Errorf("Unbox(long) calls %s%s", call.Name, call.Desc)
	}

	// void unboxes to a pop, references to a bare checkcast.
	if pop := Unbox(classfile.Void); len(pop) != 1 || pop[0].Op() != classfile.OpPop {
		t.Errorf("Unbox(void) must pop")
	}
	if cc := Unbox(classfile.ObjectType("a/B")); len(cc) != 1 || cc[0].(*classfile.TypeInsn).Type != "a/B" {
		t.Errorf("Unbox(reference) must checkcast")
	}
}

func TestPushDefault(t *testing.T) {
	tests := []struct {
		ty classfile.Type
		op int
	}{
		{classfile.Int, classfile.OpIconst0},
		{classfile.Long, classfile.OpLconst0},
		{classfile.Float, classfile.OpFconst0},
		{classfile.Double, classfile.OpDconst0},
		{classfile.ObjectType("java/lang/String"), classfile.OpAconstNull},
	}
	for _, tt := range tests {
		ins := PushDefault(tt.ty)
		if len(ins) != 1 || ins[0].Op() != tt.op {
			t.Errorf("%s: PushDefault = %v", tt.ty, ins)
		}
	}
	if PushDefault(classfile.Void) != nil {
		t.Errorf("void pushes nothing")
	}
}

func TestParseMethodSignature(t *testing.T) {
	tests := []struct {
		sig               string
		owner, name, desc string
	}{
		{"a/b/C.run(I)V", "a/b/C", "run", "(I)V"},
		{"run(I)V", "", "run", "(I)V"},
		{"run", "", "run", ""},
		{"a/b/C/run(I)V", "a/b/C", "run", "(I)V"},
		{"java/io/PrintStream.println(Ljava/lang/String;)V", "java/io/PrintStream", "println", "(Ljava/lang/String;)V"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		owner, name, desc := ParseMethodSignature(tt.sig)
		if owner != tt.owner || name != tt.name || desc != tt.desc {
			t.Errorf("%q → (%q, %q, %q), want (%q, %q, %q)",
				tt.sig, owner, name, desc, tt.owner, tt.name, tt.desc)
		}
	}
}
