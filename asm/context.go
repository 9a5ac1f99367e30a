package asm

import (
	"fmt"
	"strings"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Target-class context: the per-(target, mixin) driver
// ---------------------------------------------------------------------------

// instanceFieldPrefix names the synthesized per-target mixin instance
// field: $asmInstance$<MixinSimpleName>.
const instanceFieldPrefix = "$asmInstance$"

// TargetClassContext drives one mixin's directives against one target
// class tree. Directives run in a fixed three-pass order so that edits
// which create return instructions are invisible to edits which scan for
// them.
type TargetClassContext struct {
	Class *classfile.ClassNode
	Mixin *MixinClass

	// Applied collects human-readable descriptions of the directives
	// that produced an edit, for reports.
	Applied []string

	il      inliner
	changed bool
}

// NewTargetClassContext pairs a target class tree with one mixin.
func NewTargetClassContext(cls *classfile.ClassNode, mx *MixinClass) *TargetClassContext {
	return &TargetClassContext{
		Class: cls,
		Mixin: mx,
		il:    inliner{mixin: mx, target: cls},
	}
}

// Changed reports whether any directive edited the target.
func (c *TargetClassContext) Changed() bool { return c.changed }

// Apply runs every directive. Pass order:
//
//  1. target shape: the mixin instance field for class mixins is not
//     added up front; ensureInstanceField creates it lazily when the
//     first instance-handler call is emitted
//  2. replace-all-methods, when the mixin class declares it
//  3. field directives, then every method directive except HEAD, RETURN,
//     and TAIL injects
//  4. RETURN and TAIL injects
//  5. HEAD injects
//
// Running 4 before 5 keeps the early returns emitted by cancellable HEAD
// guards out of sight of the RETURN and TAIL scanners: when HEAD cancels,
// a RETURN handler on the same method must not fire.
func (c *TargetClassContext) Apply() {
	if c.Mixin.ReplaceAll != nil {
		c.applyOne(c.Mixin.ReplaceAll)
		if !c.Class.IsInterface() {
			c.Class.Access &^= classfile.AccAbstract
		}
	}

	var deferred []*InjectDirective
	for _, d := range c.Mixin.Directives {
		if inj, ok := d.(*InjectDirective); ok {
			switch inj.Point {
			case PointHead, PointReturn, PointTail:
				deferred = append(deferred, inj)
				continue
			}
		}
		c.applyOne(d)
	}
	for _, pt := range []InjectPoint{PointReturn, PointTail} {
		for _, inj := range deferred {
			if inj.Point == pt {
				c.applyOne(inj)
			}
		}
	}
	for _, inj := range deferred {
		if inj.Point == PointHead {
			c.applyOne(inj)
		}
	}
}

// applyOne runs a single directive inside the per-directive error
// boundary: failures and panics are reported to the sink and do not
// disturb sibling directives.
func (c *TargetClassContext) applyOne(d Directive) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("mixin %s on %s: %s: panic: %v",
				c.Mixin.Node.Name, c.Class.Name, d.Describe(), r)
		}
	}()
	changed, err := c.dispatch(d)
	if err != nil {
		log.Warningf("mixin %s on %s: %s: %s",
			c.Mixin.Node.Name, c.Class.Name, d.Describe(), err)
		return
	}
	if changed {
		c.changed = true
		c.Applied = append(c.Applied, d.Describe())
	}
}

func (c *TargetClassContext) dispatch(d Directive) (bool, error) {
	switch v := d.(type) {
	case *InjectDirective:
		switch v.Point {
		case PointHead:
			return c.injectHead(v)
		case PointTail:
			return c.injectTail(v)
		case PointReturn:
			return c.injectReturn(v)
		case PointInvoke:
			return c.injectInvoke(v)
		}
		return false, fmt.Errorf("%w: unknown inject point %v", ErrDirectiveShape, v.Point)
	case *OverwriteDirective:
		return c.applyOverwrite(v)
	case *ModifyArgDirective:
		return c.applyModifyArg(v)
	case *ModifyReturnValueDirective:
		return c.applyModifyReturnValue(v)
	case *ModifyConstantDirective:
		return c.applyModifyConstant(v)
	case *RedirectDirective:
		return c.applyRedirect(v)
	case *AccessorDirective:
		return c.applyAccessor(v)
	case *InvokerDirective:
		return c.applyInvoker(v)
	case *CopyDirective:
		return c.applyCopy(v)
	case *RemoveMethodDirective:
		return c.applyRemoveMethod(v)
	case *RemoveSynchronizedDirective:
		return c.applyRemoveSynchronized(v)
	case *ReplaceAllMethodsDirective:
		return c.applyReplaceAllMethods(v)
	case *MutableDirective:
		return c.setFieldFinal(v.FieldName, false)
	case *FinalDirective:
		return c.setFieldFinal(v.FieldName, true)
	case *ShadowDirective:
		// Shadows drive reference rebinding during body copies; they
		// produce no edit of their own.
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown directive %T", ErrDirectiveShape, d)
}

// ---------------------------------------------------------------------------
// Target lookup and shared emission helpers
// ---------------------------------------------------------------------------

// findTargetMethod resolves a directive's method key: exact on descriptor
// when one was supplied, name-only as the fallback.
func (c *TargetClassContext) findTargetMethod(key MethodKey) (*classfile.MethodNode, error) {
	if key.Desc != "" {
		if m := c.Class.Method(key.Name, key.Desc); m != nil {
			return m, nil
		}
	}
	if m := c.Class.Method(key.Name, ""); m != nil {
		return m, nil
	}
	avail := strings.Join(c.Class.MethodKeys(), ", ")
	related := c.Class.SuperName
	if len(c.Class.Interfaces) > 0 {
		related += ", " + strings.Join(c.Class.Interfaces, ", ")
	}
	return nil, fmt.Errorf("%w: %s on %s (available: %s; not searched: %s)",
		ErrTargetMissing, key, c.Class.Name, avail, related)
}

// clearBodyFlags removes abstract and native once a method has code.
func clearBodyFlags(m *classfile.MethodNode) {
	m.Access &^= classfile.AccAbstract | classfile.AccNative
}

// instanceFieldName is the synthesized mixin instance field for this pair.
func (c *TargetClassContext) instanceFieldName() string {
	return instanceFieldPrefix + c.Mixin.SimpleName()
}

// ensureInstanceField gives the target a private static synthetic field
// of the mixin's type, through which instance handlers dispatch. It is
// created lazily, on the first directive that needs it.
func (c *TargetClassContext) ensureInstanceField() {
	name := c.instanceFieldName()
	if c.Class.Field(name) != nil {
		return
	}
	c.Class.Fields = append(c.Class.Fields, &classfile.FieldNode{
		Access: classfile.AccPrivate | classfile.AccStatic | classfile.AccSynthetic,
		Name:   name,
		Desc:   classfile.ObjectType(c.Mixin.Node.Name).Descriptor(),
	})
	c.changed = true
}

// loadHandlerReceiver emits the instructions that put the handler's
// receiver on the stack: nothing for static handlers, the INSTANCE field
// for singleton mixins, and the lazily initialised synthesized field
// otherwise. The lazy path is a plain null check; that is racy under the
// memory model but the instance is only touched by mixin bodies.
func (c *TargetClassContext) loadHandlerReceiver(handler *classfile.MethodNode) []classfile.Insn {
	if handler.IsStatic() {
		return nil
	}
	mixinDesc := classfile.ObjectType(c.Mixin.Node.Name).Descriptor()
	if c.Mixin.Singleton {
		return []classfile.Insn{&classfile.FieldInsn{
			Opcode: classfile.OpGetstatic,
			Owner:  c.Mixin.Node.Name,
			Name:   "INSTANCE",
			Desc:   mixinDesc,
		}}
	}
	c.ensureInstanceField()
	field := c.instanceFieldName()
	done := &classfile.Label{}
	return []classfile.Insn{
		&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: c.Class.Name, Name: field, Desc: mixinDesc},
		&classfile.JumpInsn{Opcode: classfile.OpIfnonnull, Target: done},
		&classfile.TypeInsn{Opcode: classfile.OpNew, Type: c.Mixin.Node.Name},
		&classfile.SimpleInsn{Opcode: classfile.OpDup},
		&classfile.MethodInsn{Opcode: classfile.OpInvokespecial, Owner: c.Mixin.Node.Name, Name: "<init>", Desc: "()V"},
		&classfile.FieldInsn{Opcode: classfile.OpPutstatic, Owner: c.Class.Name, Name: field, Desc: mixinDesc},
		done,
		&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: c.Class.Name, Name: field, Desc: mixinDesc},
	}
}

// invokeHandlerInsn emits the call instruction for a handler.
func (c *TargetClassContext) invokeHandlerInsn(handler *classfile.MethodNode) classfile.Insn {
	op := classfile.OpInvokevirtual
	if handler.IsStatic() {
		op = classfile.OpInvokestatic
	} else if c.Mixin.Node.IsInterface() {
		op = classfile.OpInvokeinterface
	}
	return &classfile.MethodInsn{
		Opcode: op,
		Owner:  c.Mixin.Node.Name,
		Name:   handler.Name,
		Desc:   handler.Desc,
		Itf:    c.Mixin.Node.IsInterface(),
	}
}

// setFieldFinal toggles the final flag on a target field.
func (c *TargetClassContext) setFieldFinal(name string, final bool) (bool, error) {
	f := c.Class.Field(name)
	if f == nil {
		return false, fmt.Errorf("%w: field %q on %s", ErrTargetMissing, name, c.Class.Name)
	}
	before := f.Access
	if final {
		f.Access |= classfile.AccFinal
	} else {
		f.Access &^= classfile.AccFinal
	}
	return f.Access != before, nil
}
