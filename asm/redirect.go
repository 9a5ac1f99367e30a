package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Redirect
// ---------------------------------------------------------------------------

// applyRedirect replaces every invocation matching the directive's anchor
// with a handler call: the original call's receiver and arguments are
// parked in fresh locals and handed to the handler, and the handler's
// result is coerced to whatever the original call produced. After the
// edit, no matching invocation remains in the method.
func (c *TargetClassContext) applyRedirect(d *RedirectDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}
	sites, err := c.matchSites(tm, d.At, d.Slice, -1)
	if err != nil {
		return false, err
	}
	if len(sites) == 0 {
		return false, fmt.Errorf("%w: no invocation matches %q in %s", ErrTargetMissing, d.At.Target, d.Key)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}

	repl := make(map[classfile.Insn][]classfile.Insn)
	for _, site := range sites {
		stores, _, slots, err := spillSite(tm, site)
		if err != nil {
			return false, err
		}
		args, err := handlerCallArgs(d.Handler, site, slots)
		if err != nil {
			return false, err
		}
		block := classfile.NewInsnList()
		block.Append(stores...)
		block.Append(c.loadHandlerReceiver(d.Handler)...)
		block.Append(args...)
		block.Append(c.invokeHandlerInsn(d.Handler))
		block.Append(coerce(hType.Ret, site.ret)...)
		repl[site.insn] = block.All()
	}
	tm.Code.Replace(repl)
	return true, nil
}
