package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// INVOKE injection
// ---------------------------------------------------------------------------

// callSite describes one matched invocation inside a target body.
type callSite struct {
	insn *classfile.MethodInsn
	// values lists the call's consumed values in push order: receiver
	// first for instance calls, then the declared arguments.
	values []classfile.Type
	ret    classfile.Type
}

// matchSites collects the invocations matched by an At anchor, honoring
// slice bounds and the directive ordinal (-1 matches all).
func (c *TargetClassContext) matchSites(tm *classfile.MethodNode, at At, slice Slice, ordinal int) ([]*callSite, error) {
	owner, name, desc := ParseMethodSignature(at.Target)
	if name == "" {
		return nil, fmt.Errorf("%w: empty invoke target", ErrDirectiveShape)
	}
	lo, hi := sliceRange(tm.Code, slice)

	var sites []*callSite
	nth := 0
	for i, in := range tm.Code.All() {
		call, ok := in.(*classfile.MethodInsn)
		if !ok || i < lo || i > hi {
			continue
		}
		if call.Name != name ||
			(owner != "" && call.Owner != owner) ||
			(desc != "" && call.Desc != desc) {
			continue
		}
		if ordinal >= 0 && nth != ordinal {
			nth++
			continue
		}
		nth++
		mt, err := classfile.ParseMethodDescriptor(call.Desc)
		if err != nil {
			return nil, err
		}
		site := &callSite{insn: call, ret: mt.Ret}
		if call.Opcode != classfile.OpInvokestatic {
			site.values = append(site.values, classfile.ObjectType(call.Owner))
		}
		site.values = append(site.values, mt.Args...)
		sites = append(sites, site)
	}
	return sites, nil
}

// sliceRange resolves a Slice to inclusive instruction index bounds. From
// and To anchor on the first member reference matching their signature;
// an unset bound is open.
func sliceRange(list *classfile.InsnList, s Slice) (int, int) {
	lo, hi := 0, list.Len()-1
	if s.From != "" {
		if i := findMemberRef(list, s.From); i >= 0 {
			lo = i
		}
	}
	if s.To != "" {
		if i := findMemberRef(list, s.To); i >= 0 {
			hi = i
		}
	}
	return lo, hi
}

func findMemberRef(list *classfile.InsnList, sig string) int {
	owner, name, desc := ParseMethodSignature(sig)
	for i, in := range list.All() {
		switch n := in.(type) {
		case *classfile.MethodInsn:
			if n.Name == name && (owner == "" || n.Owner == owner) && (desc == "" || n.Desc == desc) {
				return i
			}
		case *classfile.FieldInsn:
			if n.Name == name && (owner == "" || n.Owner == owner) {
				return i
			}
		}
	}
	return -1
}

// spillSite parks a call's consumed values in fresh locals. It returns
// the stores (to emit in reverse push order) and the loads restoring the
// original stack.
func spillSite(tm *classfile.MethodNode, site *callSite) (stores, loads []classfile.Insn, slots []int, err error) {
	slots = make([]int, len(site.values))
	for i, t := range site.values {
		slots[i] = tm.MaxLocals
		tm.MaxLocals += t.Size()
	}
	for i := len(site.values) - 1; i >= 0; i-- {
		stores = append(stores, &classfile.VarInsn{Opcode: StoreOpcode(site.values[i]), Index: slots[i]})
	}
	for i, t := range site.values {
		loads = append(loads, &classfile.VarInsn{Opcode: LoadOpcode(t), Index: slots[i]})
	}
	return stores, loads, slots, nil
}

// handlerCallArgs maps handler parameters onto a spilled call site's
// values, in order. The handler may declare fewer parameters than the
// site provides.
func handlerCallArgs(handler *classfile.MethodNode, site *callSite, slots []int) ([]classfile.Insn, error) {
	hType, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil {
		return nil, err
	}
	if len(hType.Args) > len(site.values) {
		return nil, fmt.Errorf("%w: handler %s%s declares %d parameters, call site provides %d",
			ErrSignatureMismatch, handler.Name, handler.Desc, len(hType.Args), len(site.values))
	}
	var out []classfile.Insn
	for i, a := range hType.Args {
		out = append(out, &classfile.VarInsn{Opcode: LoadOpcode(a), Index: slots[i]})
	}
	return out, nil
}

// injectInvoke anchors the handler on invocations inside the target body:
// BEFORE runs it ahead of the call with the arguments parked and
// restored, AFTER runs it once the call completed (parking a non-void
// result), and REPLACE swaps the invocation for the handler call.
func (c *TargetClassContext) injectInvoke(d *InjectDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}
	sites, err := c.matchSites(tm, d.At, d.Slice, d.Ordinal)
	if err != nil {
		return false, err
	}
	if len(sites) == 0 {
		return false, fmt.Errorf("%w: no invocation matches %q in %s", ErrTargetMissing, d.At.Target, d.Key)
	}
	if d.Require > 0 && len(sites) < d.Require {
		return false, fmt.Errorf("%w: %d sites matched, directive requires %d",
			ErrDirectiveShape, len(sites), d.Require)
	}
	if d.Allow > 0 && len(sites) > d.Allow {
		return false, fmt.Errorf("%w: %d sites matched, directive allows %d",
			ErrDirectiveShape, len(sites), d.Allow)
	}
	if d.Expect > 0 && len(sites) < d.Expect {
		log.Warningf("mixin %s on %s: %s matched %d sites, expected %d",
			c.Mixin.Node.Name, c.Class.Name, d.Describe(), len(sites), d.Expect)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}

	for _, site := range sites {
		switch d.At.Shift {
		case ShiftBefore:
			stores, loads, slots, err := spillSite(tm, site)
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
			block.Append(popOf(hType.Ret)...)
			block.Append(loads...)
			tm.Code.InsertBefore(site.insn, block.All()...)

		case ShiftAfter:
			if len(hType.Args) > 0 {
				return false, fmt.Errorf("%w: AFTER-shift handler %s%s must take no parameters",
					ErrSignatureMismatch, d.Handler.Name, d.Handler.Desc)
			}
			block := classfile.NewInsnList()
			saved := -1
			if site.ret.Sort() != classfile.SortVoid {
				saved = tm.MaxLocals
				tm.MaxLocals += site.ret.Size()
				block.Append(&classfile.VarInsn{Opcode: StoreOpcode(site.ret), Index: saved})
			}
			block.Append(c.loadHandlerReceiver(d.Handler)...)
			block.Append(c.invokeHandlerInsn(d.Handler))
			block.Append(popOf(hType.Ret)...)
			if saved >= 0 {
				block.Append(&classfile.VarInsn{Opcode: LoadOpcode(site.ret), Index: saved})
			}
			tm.Code.InsertAfter(site.insn, block.All()...)

		case ShiftReplace:
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
			tm.Code.Replace(map[classfile.Insn][]classfile.Insn{site.insn: block.All()})
		}
	}
	return true, nil
}
