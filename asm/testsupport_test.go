package asm

import (
	"testing"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Test fixtures: the sample target class and mixin builders
// ---------------------------------------------------------------------------

const (
	testClassName = "sample/Test"
	mixinName     = "sample/TestMixin"
	stringDesc    = "Ljava/lang/String;"
	sbClass       = "java/lang/StringBuilder"
	sbDesc        = "Ljava/lang/StringBuilder;"
)

// buildTestClass assembles the reference target:
//
//	public class sample/Test {
//	    private String dynamicString = "DynamicString";
//	    private static String staticString;            // = "StaticString"
//	    private static final String staticFinalString = "StaticFinalString";
//	    public String testA0() { return dynamicString; }
//	    public static String testB0() { return staticFinalString; }
//	    public String testC0(String s) { ... println ... return s+"testC0"; }
//	    public static String testC1(String s) { return s+"testC1"; }
//	}
func buildTestClass() *classfile.ClassNode {
	node := &classfile.ClassNode{
		MajorVersion: classfile.MajorJava8,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         testClassName,
		SuperName:    "java/lang/Object",
	}
	node.Fields = []*classfile.FieldNode{
		{Access: classfile.AccPrivate, Name: "dynamicString", Desc: stringDesc},
		{Access: classfile.AccPrivate | classfile.AccStatic, Name: "staticString", Desc: stringDesc},
		{
			Access: classfile.AccPrivate | classfile.AccStatic | classfile.AccFinal,
			Name:   "staticFinalString", Desc: stringDesc,
			ConstantValue: "StaticFinalString",
		},
	}

	ctor := &classfile.MethodNode{Access: classfile.AccPublic, Name: "<init>", Desc: "()V", MaxLocals: 1}
	ctor.Code = classfile.NewInsnList()
	ctor.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.MethodInsn{Opcode: classfile.OpInvokespecial, Owner: "java/lang/Object", Name: "<init>", Desc: "()V"},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.LdcInsn{Value: "DynamicString"},
		&classfile.FieldInsn{Opcode: classfile.OpPutfield, Owner: testClassName, Name: "dynamicString", Desc: stringDesc},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)

	clinit := &classfile.MethodNode{Access: classfile.AccStatic, Name: "<clinit>", Desc: "()V"}
	clinit.Code = classfile.NewInsnList()
	clinit.Code.Append(
		&classfile.LdcInsn{Value: "StaticString"},
		&classfile.FieldInsn{Opcode: classfile.OpPutstatic, Owner: testClassName, Name: "staticString", Desc: stringDesc},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)

	testA0 := &classfile.MethodNode{Access: classfile.AccPublic, Name: "testA0", Desc: "()" + stringDesc, MaxLocals: 1}
	testA0.Code = classfile.NewInsnList()
	testA0.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.FieldInsn{Opcode: classfile.OpGetfield, Owner: testClassName, Name: "dynamicString", Desc: stringDesc},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)

	testB0 := &classfile.MethodNode{
		Access: classfile.AccPublic | classfile.AccStatic,
		Name:   "testB0", Desc: "()" + stringDesc,
	}
	testB0.Code = classfile.NewInsnList()
	testB0.Code.Append(
		&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: testClassName, Name: "staticFinalString", Desc: stringDesc},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)

	testC0 := &classfile.MethodNode{
		Access: classfile.AccPublic,
		Name:   "testC0", Desc: "(" + stringDesc + ")" + stringDesc,
		MaxLocals: 3,
	}
	testC0.Code = classfile.NewInsnList()
	testC0.Code.Append(concat(1, "testC0")...)
	testC0.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAstore, Index: 2},
		&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: "java/lang/System", Name: "out", Desc: "Ljava/io/PrintStream;"},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 2},
		&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: "java/io/PrintStream", Name: "println", Desc: "(" + stringDesc + ")V"},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 2},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)

	testC1 := &classfile.MethodNode{
		Access: classfile.AccPublic | classfile.AccStatic,
		Name:   "testC1", Desc: "(" + stringDesc + ")" + stringDesc,
		MaxLocals: 1,
	}
	testC1.Code = classfile.NewInsnList()
	testC1.Code.Append(concat(0, "testC1")...)
	testC1.Code.Append(&classfile.SimpleInsn{Opcode: classfile.OpAreturn})

	node.Methods = []*classfile.MethodNode{ctor, clinit, testA0, testB0, testC0, testC1}
	return node
}

// concat emits `s + literal` for the string in the given slot, leaving
// the result on the stack.
func concat(slot int, literal string) []classfile.Insn {
	appendDesc := "(" + stringDesc + ")" + sbDesc
	return []classfile.Insn{
		&classfile.TypeInsn{Opcode: classfile.OpNew, Type: sbClass},
		&classfile.SimpleInsn{Opcode: classfile.OpDup},
		&classfile.MethodInsn{Opcode: classfile.OpInvokespecial, Owner: sbClass, Name: "<init>", Desc: "()V"},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: slot},
		&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: sbClass, Name: "append", Desc: appendDesc},
		&classfile.LdcInsn{Value: literal},
		&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: sbClass, Name: "append", Desc: appendDesc},
		&classfile.MethodInsn{Opcode: classfile.OpInvokevirtual, Owner: sbClass, Name: "toString", Desc: "()" + stringDesc},
	}
}

func testClassBytes(t *testing.T) []byte {
	t.Helper()
	data, err := classfile.Write(buildTestClass(), nil)
	if err != nil {
		t.Fatalf("writing test class: %v", err)
	}
	return data
}

// ---------------------------------------------------------------------------
// Mixin construction
// ---------------------------------------------------------------------------

// ann builds an annotation from name/value pairs.
func ann(typeName string, kv ...any) classfile.Annotation {
	a := classfile.Annotation{Desc: "L" + typeName + ";"}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Values = append(a.Values, classfile.AnnotationValue{
			Name:  kv[i].(string),
			Value: kv[i+1],
		})
	}
	return a
}

func atAnn(kv ...any) classfile.Annotation { return ann(AnnotationBase+"At", kv...) }

func enum(typeName, name string) classfile.EnumValue {
	return classfile.EnumValue{TypeDesc: "L" + typeName + ";", Name: name}
}

func injectTarget(name string) classfile.EnumValue {
	return enum(AnnotationBase+"InjectionPoint", name)
}

func shiftValue(name string) classfile.EnumValue {
	return enum(AnnotationBase+"Shift", name)
}

// mixinBuilder assembles a mixin classfile in memory.
type mixinBuilder struct {
	node *classfile.ClassNode
}

func newMixin(targets ...string) *mixinBuilder {
	node := &classfile.ClassNode{
		MajorVersion: classfile.MajorJava8,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         mixinName,
		SuperName:    "java/lang/Object",
	}
	mixinAnn := ann(annMixin)
	if len(targets) > 0 {
		var targetVals []any
		for _, t := range targets {
			targetVals = append(targetVals, t)
		}
		mixinAnn = ann(annMixin, "value", targetVals)
	}
	node.VisibleAnnotations = append(node.VisibleAnnotations, mixinAnn)
	return &mixinBuilder{node: node}
}

// classAnn attaches an extra class-level annotation.
func (b *mixinBuilder) classAnn(a classfile.Annotation) *mixinBuilder {
	b.node.VisibleAnnotations = append(b.node.VisibleAnnotations, a)
	return b
}

// singleton gives the mixin an INSTANCE field of its own type.
func (b *mixinBuilder) singleton() *mixinBuilder {
	b.node.Fields = append(b.node.Fields, &classfile.FieldNode{
		Access: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal,
		Name:   "INSTANCE",
		Desc:   "L" + b.node.Name + ";",
	})
	return b
}

// method adds a handler with the given annotations and body. A nil body
// gets a minimal return.
func (b *mixinBuilder) method(access int, name, desc string, anns []classfile.Annotation, body []classfile.Insn) *mixinBuilder {
	m := &classfile.MethodNode{Access: access, Name: name, Desc: desc, VisibleAnnotations: anns}
	mt, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		panic(err)
	}
	if body == nil {
		body = append(PushDefault(mt.Ret), &classfile.SimpleInsn{Opcode: ReturnOpcode(mt.Ret)})
	}
	m.Code = classfile.NewInsnList()
	m.Code.Append(body...)
	locals := mt.ArgSlots()
	if access&classfile.AccStatic == 0 {
		locals++
	}
	m.MaxLocals = locals
	b.node.Methods = append(b.node.Methods, m)
	return b
}

func (b *mixinBuilder) field(access int, name, desc string, anns ...classfile.Annotation) *mixinBuilder {
	b.node.Fields = append(b.node.Fields, &classfile.FieldNode{
		Access: access, Name: name, Desc: desc, VisibleAnnotations: anns,
	})
	return b
}

func (b *mixinBuilder) build(t *testing.T) *MixinClass {
	t.Helper()
	data, err := classfile.Write(b.node, nil)
	if err != nil {
		t.Fatalf("writing mixin class: %v", err)
	}
	mx, err := LoadMixin(data)
	if err != nil {
		t.Fatalf("loading mixin: %v", err)
	}
	return mx
}

// ---------------------------------------------------------------------------
// Assertion helpers
// ---------------------------------------------------------------------------

// transformTest registers the mixin, transforms the sample class, and
// parses the result.
func transformTest(t *testing.T, mx *MixinClass) *classfile.ClassNode {
	t.Helper()
	reg := NewRegistry()
	reg.Register(mx)
	tr := NewTransformer(reg)
	out, err := tr.Transform(testClassName, testClassBytes(t))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	node, err := classfile.Parse(out)
	if err != nil {
		t.Fatalf("parsing transformed class: %v", err)
	}
	return node
}

// realOps lists opcode mnemonics of a method body.
func realOps(m *classfile.MethodNode) []string {
	var ops []string
	for _, in := range m.Code.All() {
		if in.Op() >= 0 {
			ops = append(ops, classfile.OpcodeName(in.Op()))
		}
	}
	return ops
}

// countCalls counts invocations of a named method in a body.
func countCalls(m *classfile.MethodNode, owner, name string) int {
	n := 0
	for _, in := range m.Code.All() {
		if call, ok := in.(*classfile.MethodInsn); ok && call.Owner == owner && call.Name == name {
			n++
		}
	}
	return n
}

// countOps counts occurrences of an opcode in a body.
func countOps(m *classfile.MethodNode, op int) int {
	n := 0
	for _, in := range m.Code.All() {
		if in.Op() == op {
			n++
		}
	}
	return n
}
