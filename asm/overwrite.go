package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Overwrite and Copy
// ---------------------------------------------------------------------------

// applyOverwrite discards the target method's body and replaces it with
// the handler's, re-read from the mixin's own classfile bytes and adapted
// to the target frame: remapped locals, rebound shadow and copy
// references, singleton calls promoted to static where the target frame
// is static, and returns rewritten when the return types differ.
func (c *TargetClassContext) applyOverwrite(d *OverwriteDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	handler, err := c.il.handlerBody(d.Handler.Name, d.Handler.Desc)
	if err != nil {
		return false, err
	}

	tm.Code = nil
	tm.TryCatch = nil
	tm.LocalVars = nil
	tm.Params = nil
	tm.MaxLocals = 0
	tm.MaxStack = 0
	clearBodyFlags(tm)

	body, tryCatch, err := c.il.copyInto(handler, tm)
	if err != nil {
		return false, err
	}
	hType, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil {
		return false, err
	}
	tType, err := classfile.ParseMethodDescriptor(tm.Desc)
	if err != nil {
		return false, err
	}
	adaptReturns(body, hType.Ret, tType.Ret)

	tm.Code = body
	tm.TryCatch = tryCatch
	tm.MaxStack = handler.MaxStack
	return true, nil
}

// applyCopy adds the handler's body to the target as a brand-new method
// under the declared name. An existing method with the same key wins: the
// copy is skipped with a warning.
func (c *TargetClassContext) applyCopy(d *CopyDirective) (bool, error) {
	desc := d.Key.Desc
	if desc == "" {
		desc = d.Handler.Desc
	}
	if existing := c.Class.Method(d.Key.Name, desc); existing != nil {
		log.Warningf("mixin %s on %s: copy target %s%s already exists, skipping",
			c.Mixin.Node.Name, c.Class.Name, d.Key.Name, desc)
		return false, nil
	}
	handler, err := c.il.handlerBody(d.Handler.Name, d.Handler.Desc)
	if err != nil {
		return false, err
	}

	nm := &classfile.MethodNode{
		Access: handler.Access &^ (classfile.AccAbstract | classfile.AccNative),
		Name:   d.Key.Name,
		Desc:   desc,
	}
	body, tryCatch, err := c.il.copyInto(handler, nm)
	if err != nil {
		return false, err
	}
	hType, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil {
		return false, err
	}
	nType, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return false, fmt.Errorf("%w: copy descriptor %q: %v", ErrDirectiveShape, desc, err)
	}
	adaptReturns(body, hType.Ret, nType.Ret)

	nm.Code = body
	nm.TryCatch = tryCatch
	nm.MaxStack = handler.MaxStack
	c.Class.Methods = append(c.Class.Methods, nm)
	return true, nil
}
