package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Shared emission helpers
// ---------------------------------------------------------------------------

// popOf drops a value of the given type from the stack.
func popOf(t classfile.Type) []classfile.Insn {
	switch t.Size() {
	case 0:
		return nil
	case 2:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpPop2}}
	default:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpPop}}
	}
}

// dupOf duplicates the top value by category.
func dupOf(t classfile.Type) classfile.Insn {
	if t.Size() == 2 {
		return &classfile.SimpleInsn{Opcode: classfile.OpDup2}
	}
	return &classfile.SimpleInsn{Opcode: classfile.OpDup}
}

// coerce converts the value on the stack from one type to another:
// box/unbox across the primitive/reference boundary, checkcast between
// references, pop/default across void.
func coerce(from, to classfile.Type) []classfile.Insn {
	if from.Descriptor() == to.Descriptor() {
		return nil
	}
	if to.Sort() == classfile.SortVoid {
		return popOf(from)
	}
	if from.Sort() == classfile.SortVoid {
		return PushDefault(to)
	}
	if from.IsPrimitive() && to.IsRef() {
		return Box(from)
	}
	if from.IsRef() && to.IsPrimitive() {
		return Unbox(to)
	}
	if from.IsRef() && to.IsRef() {
		return Unbox(to) // plain checkcast for references
	}
	// Primitive-to-primitive coercion has no general conversion here;
	// leave the value alone and let the verifier complain if the
	// directive was ill-typed.
	return nil
}

// classLiteral pushes the java/lang/Class object for a type: TYPE fields
// for primitives and void, an ldc class constant otherwise.
func classLiteral(t classfile.Type) classfile.Insn {
	if t.IsPrimitive() {
		w, ok := wrappers[t.Sort()]
		owner := "java/lang/Void"
		if ok {
			owner = w.class
		}
		return &classfile.FieldInsn{
			Opcode: classfile.OpGetstatic,
			Owner:  owner,
			Name:   "TYPE",
			Desc:   "Ljava/lang/Class;",
		}
	}
	return &classfile.LdcInsn{Value: t}
}

// pushInt emits the smallest instruction pushing an int constant.
func pushInt(v int) classfile.Insn {
	switch {
	case v >= -1 && v <= 5:
		return &classfile.SimpleInsn{Opcode: classfile.OpIconst0 + v}
	case v >= -128 && v <= 127:
		return &classfile.IntInsn{Opcode: classfile.OpBipush, Value: v}
	case v >= -32768 && v <= 32767:
		return &classfile.IntInsn{Opcode: classfile.OpSipush, Value: v}
	default:
		return &classfile.LdcInsn{Value: int32(v)}
	}
}

// paramSlots returns the local slot of each declared parameter of a
// method, receiver excluded.
func paramSlots(m *classfile.MethodNode) ([]int, []classfile.Type, error) {
	mt, err := classfile.ParseMethodDescriptor(m.Desc)
	if err != nil {
		return nil, nil, err
	}
	slots := make([]int, len(mt.Args))
	slot := 0
	if !m.IsStatic() {
		slot = 1
	}
	for i, a := range mt.Args {
		slots[i] = slot
		slot += a.Size()
	}
	return slots, mt.Args, nil
}

// extraHandlerArgs emits loads for handler parameters beyond skip,
// mapping them onto the target method's positional parameters. Types
// must line up exactly.
func extraHandlerArgs(handler, target *classfile.MethodNode, skip int) ([]classfile.Insn, error) {
	hType, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil {
		return nil, err
	}
	extra := hType.Args[skip:]
	if len(extra) == 0 {
		return nil, nil
	}
	slots, targs, err := paramSlots(target)
	if err != nil {
		return nil, err
	}
	if len(extra) > len(targs) {
		return nil, fmt.Errorf("%w: handler %s%s takes %d target parameters, target has %d",
			ErrSignatureMismatch, handler.Name, handler.Desc, len(extra), len(targs))
	}
	var out []classfile.Insn
	for i, a := range extra {
		if a.Descriptor() != targs[i].Descriptor() {
			return nil, fmt.Errorf("%w: handler parameter %d is %s, target parameter is %s",
				ErrSignatureMismatch, skip+i, a.Descriptor(), targs[i].Descriptor())
		}
		out = append(out, LoadParam(a, slots[i]))
	}
	return out, nil
}

// returnInsns snapshots the return instructions of a method body.
func returnInsns(list *classfile.InsnList) []classfile.Insn {
	var out []classfile.Insn
	for _, in := range list.All() {
		if IsReturnOpcode(in.Op()) {
			out = append(out, in)
		}
	}
	return out
}
