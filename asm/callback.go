package asm

import (
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// CallbackInfo support
// ---------------------------------------------------------------------------

// RuntimeBase is the internal-name prefix of the runtime support classes
// referenced by emitted bytecode.
const RuntimeBase = "com/relay/asm/runtime/"

const (
	// CallbackInfoClass is the per-call object handed to inject handlers.
	CallbackInfoClass = RuntimeBase + "CallbackInfo"
	// CallbackInfoDesc is its field/parameter descriptor.
	CallbackInfoDesc = "L" + CallbackInfoClass + ";"

	// InvokeDispatcherClass is the runtime dispatch surface used by
	// replace-all-methods stubs.
	InvokeDispatcherClass = RuntimeBase + "InvokeDispatcher"
	// InvokeDesc is the descriptor shared by its invoke and invokeIgnore
	// entry points.
	InvokeDesc = "(Ljava/lang/Object;Ljava/lang/String;Ljava/lang/Class;[Ljava/lang/Object;)Ljava/lang/Object;"
)

// wantsCallbackInfo reports whether a handler requests a CallbackInfo,
// detected by its first parameter type.
func wantsCallbackInfo(handler *classfile.MethodNode) bool {
	mt, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil || len(mt.Args) == 0 {
		return false
	}
	return mt.Args[0].Descriptor() == CallbackInfoDesc
}

// newCallbackInfo emits allocation of a fresh CallbackInfo, leaving the
// instance on the stack.
func newCallbackInfo() []classfile.Insn {
	return []classfile.Insn{
		&classfile.TypeInsn{Opcode: classfile.OpNew, Type: CallbackInfoClass},
		&classfile.SimpleInsn{Opcode: classfile.OpDup},
		&classfile.MethodInsn{
			Opcode: classfile.OpInvokespecial,
			Owner:  CallbackInfoClass,
			Name:   "<init>",
			Desc:   "()V",
		},
	}
}

// callbackCall emits an instance call on a CallbackInfo already on the
// stack.
func callbackCall(name, desc string) classfile.Insn {
	return &classfile.MethodInsn{
		Opcode: classfile.OpInvokevirtual,
		Owner:  CallbackInfoClass,
		Name:   name,
		Desc:   desc,
	}
}
