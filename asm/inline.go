package asm

import (
	"errors"
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Inline code generator
// ---------------------------------------------------------------------------

var (
	ErrHandlerMissing = errors.New("handler method not found in mixin classfile")
	ErrHandlerNoCode  = errors.New("handler method has no code")
)

// promotionLookahead bounds the forward scan that pairs a pushed INSTANCE
// with its invocation during instance-to-static promotion. The limit is
// arbitrary and may miss legitimate but unusual patterns; keep it.
const promotionLookahead = 100

// inliner adapts a mixin handler's body into a target method's frame:
// fresh labels, remapped local indices, and member references rebound from
// the mixin class to the target class.
type inliner struct {
	mixin  *MixinClass
	target *classfile.ClassNode
}

// handlerBody re-reads the handler's instructions from the mixin's own
// classfile bytes, so the mixin tree held by the registry is never
// touched. The returned method node is private to the caller.
func (il *inliner) handlerBody(name, desc string) (*classfile.MethodNode, error) {
	node, err := classfile.Parse(il.mixin.Bytes)
	if err != nil {
		return nil, fmt.Errorf("re-reading mixin %s: %w", il.mixin.Node.Name, err)
	}
	m := node.Method(name, desc)
	if m == nil {
		return nil, fmt.Errorf("%w: %s%s in %s", ErrHandlerMissing, name, desc, node.Name)
	}
	if m.Code == nil {
		return nil, fmt.Errorf("%w: %s%s", ErrHandlerNoCode, name, desc)
	}
	return m, nil
}

// copyInto produces the handler's instruction list adapted to the target
// method's frame. The target method's MaxLocals is raised to cover the
// shifted locals.
func (il *inliner) copyInto(handler *classfile.MethodNode, targetMethod *classfile.MethodNode) (*classfile.InsnList, []*classfile.TryCatchBlock, error) {
	list, labels := handler.Code.Clone()
	tryCatch := make([]*classfile.TryCatchBlock, 0, len(handler.TryCatch))
	for _, h := range handler.TryCatch {
		tryCatch = append(tryCatch, &classfile.TryCatchBlock{
			Start:   labels[h.Start],
			End:     labels[h.End],
			Handler: labels[h.Handler],
			Type:    h.Type,
		})
	}

	if err := il.remapLocals(list, handler, targetMethod); err != nil {
		return nil, nil, err
	}
	il.rebindOwners(list)
	if targetMethod.IsStatic() && !handler.IsStatic() && il.mixin.Singleton {
		if err := il.promoteSingletonCalls(list); err != nil {
			return nil, nil, err
		}
	}

	srcType, err := classfile.ParseMethodDescriptor(handler.Desc)
	if err != nil {
		return nil, nil, err
	}
	tgtType, err := classfile.ParseMethodDescriptor(targetMethod.Desc)
	if err != nil {
		return nil, nil, err
	}
	srcSlots := srcType.ArgSlots()
	if !handler.IsStatic() {
		srcSlots++
	}
	tgtSlots := tgtType.ArgSlots()
	if !targetMethod.IsStatic() {
		tgtSlots++
	}
	needed := tgtSlots + (handler.MaxLocals - srcSlots)
	if needed > targetMethod.MaxLocals {
		targetMethod.MaxLocals = needed
	}
	return list, tryCatch, nil
}

// remapLocals rewrites local indices from the handler's frame layout to
// the target's. Parameter slots are paired in declaration order; loads of
// the handler's own receiver are removed when the target frame is static
// and pair with the target's receiver (slot 0) when it is an instance
// frame. Non-parameter locals are shifted by the difference in parameter
// slot counts.
func (il *inliner) remapLocals(list *classfile.InsnList, source, target *classfile.MethodNode) error {
	srcType, err := classfile.ParseMethodDescriptor(source.Desc)
	if err != nil {
		return err
	}
	tgtType, err := classfile.ParseMethodDescriptor(target.Desc)
	if err != nil {
		return err
	}

	srcInstance := !source.IsStatic()
	indexMap := make(map[int]int)
	srcSlot := 0
	tgtSlot := 0
	if srcInstance {
		srcSlot = 1
	}
	if !target.IsStatic() {
		tgtSlot = 1
	}
	for i, a := range srcType.Args {
		indexMap[srcSlot] = tgtSlot
		srcSlot += a.Size()
		if i < len(tgtType.Args) {
			tgtSlot += tgtType.Args[i].Size()
		} else {
			tgtSlot += a.Size()
		}
	}
	srcParams := srcSlot
	tgtParams := tgtSlot
	shift := tgtParams - srcParams

	repl := make(map[classfile.Insn][]classfile.Insn)
	for _, in := range list.All() {
		switch n := in.(type) {
		case *classfile.VarInsn:
			if n.Index < srcParams {
				if srcInstance && n.Index == 0 {
					// The source receiver has no meaning inside a static
					// target frame and is removed; in an instance frame
					// it pairs with the target's own receiver.
					if target.IsStatic() {
						repl[in] = nil
						continue
					}
					n.Index = 0
					continue
				}
				if mapped, ok := indexMap[n.Index]; ok {
					n.Index = mapped
				}
			} else {
				n.Index += shift
				if n.Index < 0 || n.Index > 0xFFFF {
					return fmt.Errorf("remapped local index %d out of range", n.Index)
				}
			}
		case *classfile.IincInsn:
			if n.Index < srcParams {
				if mapped, ok := indexMap[n.Index]; ok {
					n.Index = mapped
				}
			} else {
				n.Index += shift
			}
		}
	}
	if len(repl) > 0 {
		list.Replace(repl)
	}
	return nil
}

// rebindOwners rewrites references to the mixin class: shadow fields and
// methods point at the shadowed target member, and calls to @Copy-declared
// handlers point at the copied method on the target.
func (il *inliner) rebindOwners(list *classfile.InsnList) {
	mixinName := il.mixin.Node.Name
	for _, in := range list.All() {
		switch n := in.(type) {
		case *classfile.FieldInsn:
			if n.Owner != mixinName {
				continue
			}
			if target, ok := il.mixin.shadowFieldTarget(n.Name); ok {
				n.Owner = il.target.Name
				n.Name = target
			}
		case *classfile.MethodInsn:
			if n.Owner != mixinName {
				continue
			}
			if target, ok := il.mixin.copyMethodTarget(n.Name, n.Desc); ok {
				n.Owner = il.target.Name
				n.Name = target
				continue
			}
			if target, ok := il.mixin.shadowMethodTarget(n.Name, n.Desc); ok {
				n.Owner = il.target.Name
				n.Name = target
			}
		}
	}
}

// promoteSingletonCalls excises getstatic INSTANCE pushes and turns the
// invocation consuming them into invokestatic, for singleton mixins whose
// instance handler lands in a static target frame. The pairing walks
// forward from each push tracking an abstract stack depth; the invocation
// whose receiver sits exactly at the pushed value's depth is the consumer.
func (il *inliner) promoteSingletonCalls(list *classfile.InsnList) error {
	mixinName := il.mixin.Node.Name
	insns := list.Copy()
	removed := make(map[classfile.Insn][]classfile.Insn)

	for i, in := range insns {
		get, ok := in.(*classfile.FieldInsn)
		if !ok || get.Op() != classfile.OpGetstatic ||
			get.Owner != mixinName || get.Name != "INSTANCE" {
			continue
		}
		if _, dead := removed[in]; dead {
			continue
		}
		depth := 1
		limit := i + promotionLookahead
		for j := i + 1; j < len(insns) && j <= limit; j++ {
			next := insns[j]
			if call, ok := next.(*classfile.MethodInsn); ok &&
				call.Owner == mixinName &&
				(call.Op() == classfile.OpInvokevirtual || call.Op() == classfile.OpInvokespecial) {
				mt, err := classfile.ParseMethodDescriptor(call.Desc)
				if err != nil {
					return err
				}
				if depth == mt.ArgSlots()+1 {
					removed[in] = nil
					call.Opcode = classfile.OpInvokestatic
					break
				}
			}
			delta, err := stackDelta(next)
			if err != nil {
				// Control flow or an unmodeled instruction ends the
				// linear scan; leave this push alone.
				break
			}
			depth += delta
			if depth < 1 {
				break
			}
		}
	}
	if len(removed) > 0 {
		list.Replace(removed)
	}
	return nil
}

// inlineHandlerBlock copies a void handler's body for inline injection:
// the instructions land directly in the target frame and every return
// becomes a jump to the end of the copied block. CallbackInfo handlers
// and non-void handlers cannot inline.
func (c *TargetClassContext) inlineHandlerBlock(d *InjectDirective, tm *classfile.MethodNode) (*classfile.InsnList, error) {
	if d.Cancellable || wantsCallbackInfo(d.Handler) {
		return nil, fmt.Errorf("%w: inline handler %s%s cannot be cancellable or take a CallbackInfo",
			ErrDirectiveShape, d.Handler.Name, d.Handler.Desc)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return nil, err
	}
	if hType.Ret.Sort() != classfile.SortVoid {
		return nil, fmt.Errorf("%w: inline handler %s%s must return void",
			ErrDirectiveShape, d.Handler.Name, d.Handler.Desc)
	}
	handler, err := c.il.handlerBody(d.Handler.Name, d.Handler.Desc)
	if err != nil {
		return nil, err
	}
	body, tryCatch, err := c.il.copyInto(handler, tm)
	if err != nil {
		return nil, err
	}
	end := &classfile.Label{}
	repl := make(map[classfile.Insn][]classfile.Insn)
	for _, in := range body.All() {
		if in.Op() == classfile.OpReturn {
			repl[in] = []classfile.Insn{&classfile.JumpInsn{Opcode: classfile.OpGoto, Target: end}}
		}
	}
	body.Replace(repl)
	body.Append(end)
	tm.TryCatch = append(tm.TryCatch, tryCatch...)
	return body, nil
}

// adaptReturns rewrites the handler's returns when the target expects a
// different return type: the original value is dropped and a
// type-appropriate default is returned instead.
func adaptReturns(list *classfile.InsnList, from, to classfile.Type) {
	if from.Descriptor() == to.Descriptor() {
		return
	}
	repl := make(map[classfile.Insn][]classfile.Insn)
	for _, in := range list.All() {
		if !IsReturnOpcode(in.Op()) {
			continue
		}
		var seq []classfile.Insn
		switch from.Size() {
		case 1:
			seq = append(seq, &classfile.SimpleInsn{Opcode: classfile.OpPop})
		case 2:
			seq = append(seq, &classfile.SimpleInsn{Opcode: classfile.OpPop2})
		}
		seq = append(seq, PushDefault(to)...)
		seq = append(seq, &classfile.SimpleInsn{Opcode: ReturnOpcode(to)})
		repl[in] = seq
	}
	list.Replace(repl)
}

// stackDelta is the net slot change of one instruction, derived from the
// opcode table plus the referenced descriptor where the effect depends on
// it. Branches and switches return an error: the linear-scan callers must
// stop there.
func stackDelta(in classfile.Insn) (int, error) {
	switch n := in.(type) {
	case *classfile.Label, *classfile.LineInsn:
		return 0, nil
	case *classfile.FieldInsn:
		ft, err := classfile.TypeFromDescriptor(n.Desc)
		if err != nil {
			return 0, err
		}
		switch n.Opcode {
		case classfile.OpGetstatic:
			return ft.Size(), nil
		case classfile.OpPutstatic:
			return -ft.Size(), nil
		case classfile.OpGetfield:
			return ft.Size() - 1, nil
		default: // putfield
			return -ft.Size() - 1, nil
		}
	case *classfile.MethodInsn:
		mt, err := classfile.ParseMethodDescriptor(n.Desc)
		if err != nil {
			return 0, err
		}
		delta := mt.Ret.Size() - mt.ArgSlots()
		if n.Opcode != classfile.OpInvokestatic {
			delta--
		}
		return delta, nil
	case *classfile.InvokeDynamicInsn:
		mt, err := classfile.ParseMethodDescriptor(n.Desc)
		if err != nil {
			return 0, err
		}
		return mt.Ret.Size() - mt.ArgSlots(), nil
	case *classfile.MultiANewArrayInsn:
		return 1 - n.Dims, nil
	case *classfile.LdcInsn:
		switch n.Value.(type) {
		case int64, float64:
			return 2, nil
		}
		return 1, nil
	case *classfile.IincInsn:
		return 0, nil
	case *classfile.JumpInsn, *classfile.TableSwitchInsn, *classfile.LookupSwitchInsn:
		return 0, fmt.Errorf("control flow reached")
	}
	if d, ok := classfile.StackDelta(in.Op()); ok {
		return d, nil
	}
	return 0, fmt.Errorf("opcode %s has no static stack delta", classfile.OpcodeName(in.Op()))
}
