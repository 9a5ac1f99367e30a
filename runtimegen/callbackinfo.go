// Package runtimegen synthesizes the runtime support classes that
// transformed bytecode references, so the offline tool can bundle them
// next to its output.
package runtimegen

import (
	"github.com/RELAY-CN/ASM-Framework/asm"
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

const objectClass = "java/lang/Object"

// CallbackInfo generates the classfile bytes of the per-call object inject
// handlers receive: a mutable cancelled flag and return-value slot with
// their accessors.
func CallbackInfo() ([]byte, error) {
	node := &classfile.ClassNode{
		MajorVersion: classfile.MajorJava8,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         asm.CallbackInfoClass,
		SuperName:    objectClass,
		Fields: []*classfile.FieldNode{
			{Access: classfile.AccPrivate, Name: "cancelled", Desc: "Z"},
			{Access: classfile.AccPrivate, Name: "returnValue", Desc: "Ljava/lang/Object;"},
		},
	}

	ctor := &classfile.MethodNode{
		Access: classfile.AccPublic, Name: "<init>", Desc: "()V",
		MaxLocals: 1,
	}
	ctor.Code = classfile.NewInsnList()
	ctor.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.MethodInsn{Opcode: classfile.OpInvokespecial, Owner: objectClass, Name: "<init>", Desc: "()V"},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)

	cancel := &classfile.MethodNode{
		Access: classfile.AccPublic, Name: "cancel", Desc: "()V",
		MaxLocals: 1,
	}
	cancel.Code = classfile.NewInsnList()
	cancel.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.SimpleInsn{Opcode: classfile.OpIconst1},
		&classfile.FieldInsn{Opcode: classfile.OpPutfield, Owner: asm.CallbackInfoClass, Name: "cancelled", Desc: "Z"},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)

	isCancelled := &classfile.MethodNode{
		Access: classfile.AccPublic, Name: "isCancelled", Desc: "()Z",
		MaxLocals: 1,
	}
	isCancelled.Code = classfile.NewInsnList()
	isCancelled.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.FieldInsn{Opcode: classfile.OpGetfield, Owner: asm.CallbackInfoClass, Name: "cancelled", Desc: "Z"},
		&classfile.SimpleInsn{Opcode: classfile.OpIreturn},
	)

	setReturn := &classfile.MethodNode{
		Access: classfile.AccPublic, Name: "setReturnValue", Desc: "(Ljava/lang/Object;)V",
		MaxLocals: 2,
	}
	setReturn.Code = classfile.NewInsnList()
	setReturn.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 1},
		&classfile.FieldInsn{Opcode: classfile.OpPutfield, Owner: asm.CallbackInfoClass, Name: "returnValue", Desc: "Ljava/lang/Object;"},
		&classfile.SimpleInsn{Opcode: classfile.OpReturn},
	)

	getReturn := &classfile.MethodNode{
		Access: classfile.AccPublic, Name: "getReturnValue", Desc: "()Ljava/lang/Object;",
		MaxLocals: 1,
	}
	getReturn.Code = classfile.NewInsnList()
	getReturn.Code.Append(
		&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0},
		&classfile.FieldInsn{Opcode: classfile.OpGetfield, Owner: asm.CallbackInfoClass, Name: "returnValue", Desc: "Ljava/lang/Object;"},
		&classfile.SimpleInsn{Opcode: classfile.OpAreturn},
	)

	node.Methods = []*classfile.MethodNode{ctor, cancel, isCancelled, setReturn, getReturn}
	return classfile.Write(node, nil)
}
