package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// HEAD injection
// ---------------------------------------------------------------------------

// injectHead runs the handler before any original instruction. A
// cancellable handler gets a guarded early return: when the CallbackInfo
// reports cancelled, the override return value (or a type default) is
// returned without executing the original body. HEAD injects run in the
// final driver pass, so the returns emitted here are never seen by the
// RETURN and TAIL scanners.
func (c *TargetClassContext) injectHead(d *InjectDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	retType, err := classfile.ParseMethodDescriptor(tm.Desc)
	if err != nil {
		return false, err
	}
	ret := retType.Ret

	// An abstract target gets a minimal body so the handler has a place
	// to run.
	if tm.Code == nil {
		tm.Code = classfile.NewInsnList()
		tm.Code.Append(PushDefault(ret)...)
		tm.Code.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(ret)})
		clearBodyFlags(tm)
	}

	if d.Inline {
		block, err := c.inlineHandlerBlock(d, tm)
		if err != nil {
			return false, err
		}
		tm.Code.Prepend(block.All()...)
		clearBodyFlags(tm)
		return true, nil
	}

	useCB := wantsCallbackInfo(d.Handler)
	block := classfile.NewInsnList()

	ciVar := -1
	if useCB {
		ciVar = tm.MaxLocals
		tm.MaxLocals++
		block.Append(newCallbackInfo()...)
		block.Append(&classfile.VarInsn{Opcode: classfile.OpAstore, Index: ciVar})
	}

	block.Append(c.loadHandlerReceiver(d.Handler)...)
	skip := 0
	if useCB {
		block.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: ciVar})
		skip = 1
	}
	extras, err := extraHandlerArgs(d.Handler, tm, skip)
	if err != nil {
		return false, err
	}
	block.Append(extras...)
	block.Append(c.invokeHandlerInsn(d.Handler))

	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}
	block.Append(popOf(hType.Ret)...)

	if d.Cancellable {
		if !useCB {
			return false, fmt.Errorf("%w: cancellable inject handler %s%s takes no CallbackInfo",
				ErrDirectiveShape, d.Handler.Name, d.Handler.Desc)
		}
		resume := &classfile.Label{}
		block.Append(
			&classfile.VarInsn{Opcode: classfile.OpAload, Index: ciVar},
			callbackCall("isCancelled", "()Z"),
			&classfile.JumpInsn{Opcode: classfile.OpIfeq, Target: resume},
		)
		if ret.Sort() == classfile.SortVoid {
			block.Append(&classfile.SimpleInsn{Opcode: classfile.OpReturn})
		} else {
			useDefault := &classfile.Label{}
			block.Append(
				&classfile.VarInsn{Opcode: classfile.OpAload, Index: ciVar},
				callbackCall("getReturnValue", "()Ljava/lang/Object;"),
				&classfile.SimpleInsn{Opcode: classfile.OpDup},
				&classfile.JumpInsn{Opcode: classfile.OpIfnull, Target: useDefault},
			)
			block.Append(Unbox(ret)...)
			block.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(ret)})
			block.Append(useDefault, &classfile.SimpleInsn{Opcode: classfile.OpPop})
			block.Append(PushDefault(ret)...)
			block.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(ret)})
		}
		block.Append(resume)
	}

	tm.Code.Prepend(block.All()...)
	clearBodyFlags(tm)
	return true, nil
}
