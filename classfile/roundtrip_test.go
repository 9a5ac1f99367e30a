package classfile

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------------
// Write→Parse round-trip tests
// ---------------------------------------------------------------------------

const stringDesc = "Ljava/lang/String;"

// buildSampleClass assembles a small class by hand:
//
//	public class sample/Test {
//	    private String dynamicString = "DynamicString";
//	    static String pick(boolean) { return b ? "yes" : "no"; }
//	    String read() { return dynamicString; }
//	}
func buildSampleClass() *ClassNode {
	node := &ClassNode{
		MajorVersion: MajorJava8,
		Access:       AccPublic | AccSuper,
		Name:         "sample/Test",
		SuperName:    "java/lang/Object",
		SourceFile:   "Test.java",
	}
	node.Fields = []*FieldNode{
		{Access: AccPrivate, Name: "dynamicString", Desc: stringDesc},
	}

	ctor := &MethodNode{Access: AccPublic, Name: "<init>", Desc: "()V", MaxLocals: 1}
	ctor.Code = NewInsnList()
	ctor.Code.Append(
		&VarInsn{Opcode: OpAload, Index: 0},
		&MethodInsn{Opcode: OpInvokespecial, Owner: "java/lang/Object", Name: "<init>", Desc: "()V"},
		&VarInsn{Opcode: OpAload, Index: 0},
		&LdcInsn{Value: "DynamicString"},
		&FieldInsn{Opcode: OpPutfield, Owner: "sample/Test", Name: "dynamicString", Desc: stringDesc},
		&SimpleInsn{Opcode: OpReturn},
	)

	pick := &MethodNode{Access: AccStatic, Name: "pick", Desc: "(Z)" + stringDesc, MaxLocals: 1}
	elseLabel := &Label{}
	pick.Code = NewInsnList()
	pick.Code.Append(
		&VarInsn{Opcode: OpIload, Index: 0},
		&JumpInsn{Opcode: OpIfeq, Target: elseLabel},
		&LdcInsn{Value: "yes"},
		&SimpleInsn{Opcode: OpAreturn},
		elseLabel,
		&LdcInsn{Value: "no"},
		&SimpleInsn{Opcode: OpAreturn},
	)

	read := &MethodNode{Access: AccPublic, Name: "read", Desc: "()" + stringDesc, MaxLocals: 1}
	read.Code = NewInsnList()
	read.Code.Append(
		&VarInsn{Opcode: OpAload, Index: 0},
		&FieldInsn{Opcode: OpGetfield, Owner: "sample/Test", Name: "dynamicString", Desc: stringDesc},
		&SimpleInsn{Opcode: OpAreturn},
	)

	node.Methods = []*MethodNode{ctor, pick, read}
	return node
}

func TestWriteParseRoundTrip(t *testing.T) {
	data, err := Write(buildSampleClass(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	node, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if node.Name != "sample/Test" || node.SuperName != "java/lang/Object" {
		t.Errorf("class identity lost: %s extends %s", node.Name, node.SuperName)
	}
	if node.SourceFile != "Test.java" {
		t.Errorf("SourceFile = %q", node.SourceFile)
	}
	if len(node.Fields) != 1 || node.Fields[0].Name != "dynamicString" {
		t.Fatalf("fields lost: %+v", node.Fields)
	}
	if len(node.Methods) != 3 {
		t.Fatalf("got %d methods, want 3", len(node.Methods))
	}

	read := node.Method("read", "()"+stringDesc)
	if read == nil || read.Code == nil {
		t.Fatalf("read method missing")
	}
	var ops []string
	for _, in := range read.Code.All() {
		if in.Op() >= 0 {
			ops = append(ops, OpcodeName(in.Op()))
		}
	}
	want := []string{"aload", "getfield", "areturn"}
	if len(ops) != len(want) {
		t.Fatalf("read ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("read op %d = %s, want %s", i, ops[i], want[i])
		}
	}
}

// Reading and writing the tree without any edit produces bytes that parse
// to an equal tree.
func TestRoundTripStability(t *testing.T) {
	first, err := Write(buildSampleClass(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	node, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := Write(node, nil)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	reparsed, err := Parse(second)
	if err != nil {
		t.Fatalf("second Parse: %v", err)
	}
	if reparsed.Name != node.Name ||
		len(reparsed.Methods) != len(node.Methods) ||
		len(reparsed.Fields) != len(node.Fields) {
		t.Fatalf("round trip drifted: %s %d/%d", reparsed.Name, len(reparsed.Methods), len(reparsed.Fields))
	}
	for i, m := range node.Methods {
		r := reparsed.Methods[i]
		if m.Name != r.Name || m.Desc != r.Desc || m.Access != r.Access {
			t.Errorf("method %d drifted: %s%s vs %s%s", i, m.Name, m.Desc, r.Name, r.Desc)
		}
		if countReal(m.Code) != countReal(r.Code) {
			t.Errorf("method %s: %d vs %d instructions", m.Name, countReal(m.Code), countReal(r.Code))
		}
	}
}

func countReal(l *InsnList) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, in := range l.All() {
		if in.Op() >= 0 {
			n++
		}
	}
	return n
}

func TestWriterEmitsStackMapForBranches(t *testing.T) {
	data, err := Write(buildSampleClass(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Contains(data, []byte("StackMapTable")) {
		t.Errorf("expected a StackMapTable attribute for the branching method")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatalf("expected error for truncated input")
	}
	if _, err := Parse([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 52, 0, 0}); err == nil {
		t.Fatalf("expected magic error")
	}
}

func TestMaxStackComputed(t *testing.T) {
	node := buildSampleClass()
	// Deliberately understate the hints; the writer must still compute
	// working values.
	for _, m := range node.Methods {
		m.MaxStack = 0
	}
	data, err := Write(node, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctor := parsed.Method("<init>", "()V")
	if ctor.MaxStack < 2 {
		t.Errorf("constructor MaxStack = %d, want >= 2", ctor.MaxStack)
	}
	if ctor.MaxLocals < 1 {
		t.Errorf("constructor MaxLocals = %d, want >= 1", ctor.MaxLocals)
	}
}
