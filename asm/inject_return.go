package asm

import (
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// RETURN injection
// ---------------------------------------------------------------------------

// injectReturn runs the handler immediately before each original return.
// For non-void targets the outgoing value is parked in a fresh local; a
// handler that requests a CallbackInfo receives it pre-populated with the
// boxed value via setReturnValue, and a non-null getReturnValue afterward
// overrides the value the method returns. RETURN injects run before HEAD
// injects so that HEAD-emitted early returns are never instrumented.
func (c *TargetClassContext) injectReturn(d *InjectDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}
	mt, err := classfile.ParseMethodDescriptor(tm.Desc)
	if err != nil {
		return false, err
	}
	ret := mt.Ret
	useCB := wantsCallbackInfo(d.Handler)
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}

	returns := returnInsns(tm.Code)
	if len(returns) == 0 {
		return false, nil
	}

	for _, r := range returns {
		block := classfile.NewInsnList()
		saved := -1
		ciVar := -1

		if ret.Sort() != classfile.SortVoid {
			saved = tm.MaxLocals
			tm.MaxLocals += ret.Size()
			block.Append(&classfile.VarInsn{Opcode: StoreOpcode(ret), Index: saved})
		}
		if useCB {
			ciVar = tm.MaxLocals
			tm.MaxLocals++
			block.Append(newCallbackInfo()...)
			block.Append(&classfile.VarInsn{Opcode: classfile.OpAstore, Index: ciVar})
			if saved >= 0 {
				block.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: ciVar})
				block.Append(&classfile.VarInsn{Opcode: LoadOpcode(ret), Index: saved})
				block.Append(Box(ret)...)
				block.Append(callbackCall("setReturnValue", "(Ljava/lang/Object;)V"))
			}
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
		block.Append(popOf(hType.Ret)...)

		if useCB && saved >= 0 {
			keep := &classfile.Label{}
			done := &classfile.Label{}
			block.Append(
				&classfile.VarInsn{Opcode: classfile.OpAload, Index: ciVar},
				callbackCall("getReturnValue", "()Ljava/lang/Object;"),
				&classfile.SimpleInsn{Opcode: classfile.OpDup},
				&classfile.JumpInsn{Opcode: classfile.OpIfnull, Target: keep},
			)
			block.Append(Unbox(ret)...)
			block.Append(
				&classfile.VarInsn{Opcode: StoreOpcode(ret), Index: saved},
				&classfile.JumpInsn{Opcode: classfile.OpGoto, Target: done},
				keep,
				&classfile.SimpleInsn{Opcode: classfile.OpPop},
				done,
			)
		}
		if saved >= 0 {
			block.Append(&classfile.VarInsn{Opcode: LoadOpcode(ret), Index: saved})
		}
		tm.Code.InsertBefore(r, block.All()...)
	}
	return true, nil
}
