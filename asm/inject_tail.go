package asm

import (
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// TAIL injection
// ---------------------------------------------------------------------------

// injectTail inserts a handler call before every return of the target
// method, cloning the call block per site so label identities stay
// distinct. A method with no return at all (it throws on every path)
// gets a single call before its last instruction; an empty body becomes
// exactly the call block.
func (c *TargetClassContext) injectTail(d *InjectDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}

	block, err := c.tailBlock(d, tm)
	if err != nil {
		return false, err
	}

	returns := returnInsns(tm.Code)
	switch {
	case tm.Code.Len() == 0:
		tm.Code.Append(block.All()...)
	case len(returns) == 0:
		clone, _ := block.Clone()
		tm.Code.InsertBefore(tm.Code.Last(), clone.All()...)
	default:
		for _, r := range returns {
			clone, _ := block.Clone()
			tm.Code.InsertBefore(r, clone.All()...)
		}
	}
	return true, nil
}

// tailBlock builds one handler call block: receiver, optional fresh
// CallbackInfo, mapped target parameters, the call, and a pop of any
// handler result.
func (c *TargetClassContext) tailBlock(d *InjectDirective, tm *classfile.MethodNode) (*classfile.InsnList, error) {
	block := classfile.NewInsnList()
	block.Append(c.loadHandlerReceiver(d.Handler)...)
	skip := 0
	if wantsCallbackInfo(d.Handler) {
		block.Append(newCallbackInfo()...)
		skip = 1
	}
	extras, err := extraHandlerArgs(d.Handler, tm, skip)
	if err != nil {
		return nil, err
	}
	block.Append(extras...)
	block.Append(c.invokeHandlerInsn(d.Handler))
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return nil, err
	}
	block.Append(popOf(hType.Ret)...)
	return block, nil
}
