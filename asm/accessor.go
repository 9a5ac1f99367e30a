package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Accessor and Invoker generation
// ---------------------------------------------------------------------------

// applyAccessor synthesizes a public synthetic getter or setter for a
// target field, shaped after the handler: no parameters returning the
// field type reads it, one parameter of the field type returning void
// writes it. The handler's staticness must match the field's.
func (c *TargetClassContext) applyAccessor(d *AccessorDirective) (bool, error) {
	field := c.Class.Field(d.FieldName)
	if field == nil {
		return false, fmt.Errorf("%w: field %q on %s", ErrTargetMissing, d.FieldName, c.Class.Name)
	}
	fieldStatic := field.Access&classfile.AccStatic != 0
	if d.Handler.IsStatic() != fieldStatic {
		return false, fmt.Errorf("%w: accessor %s%s is static=%v but field %s is static=%v",
			ErrDirectiveShape, d.Handler.Name, d.Handler.Desc, d.Handler.IsStatic(), field.Name, fieldStatic)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}

	var setter bool
	switch {
	case len(hType.Args) == 0 && hType.Ret.Descriptor() == field.Desc:
		setter = false
	case len(hType.Args) == 1 && hType.Args[0].Descriptor() == field.Desc &&
		hType.Ret.Sort() == classfile.SortVoid:
		setter = true
	default:
		return false, fmt.Errorf("%w: accessor %s%s fits neither getter nor setter for field %s:%s",
			ErrDirectiveShape, d.Handler.Name, d.Handler.Desc, field.Name, field.Desc)
	}

	if existing := c.Class.Method(d.Handler.Name, d.Handler.Desc); existing != nil {
		log.Warningf("mixin %s on %s: accessor %s%s already exists, skipping",
			c.Mixin.Node.Name, c.Class.Name, d.Handler.Name, d.Handler.Desc)
		return false, nil
	}

	if setter && field.Access&classfile.AccFinal != 0 {
		if _, mutable := d.Handler.Annotation(annMutable); mutable {
			field.Access &^= classfile.AccFinal
		} else {
			return false, fmt.Errorf("%w: setter for final field %s (declare @Mutable to strip final)",
				ErrDirectiveShape, field.Name)
		}
	}

	ft, err := classfile.TypeFromDescriptor(field.Desc)
	if err != nil {
		return false, err
	}
	access := classfile.AccPublic | classfile.AccSynthetic
	if fieldStatic {
		access |= classfile.AccStatic
	}
	nm := &classfile.MethodNode{Access: access, Name: d.Handler.Name, Desc: d.Handler.Desc}
	nm.Code = classfile.NewInsnList()

	switch {
	case !setter && fieldStatic:
		nm.Code.Append(&classfile.FieldInsn{Opcode: classfile.OpGetstatic, Owner: c.Class.Name, Name: field.Name, Desc: field.Desc})
		nm.Code.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(ft)})
		nm.MaxLocals = 0
	case !setter:
		nm.Code.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0})
		nm.Code.Append(&classfile.FieldInsn{Opcode: classfile.OpGetfield, Owner: c.Class.Name, Name: field.Name, Desc: field.Desc})
		nm.Code.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(ft)})
		nm.MaxLocals = 1
	case fieldStatic:
		nm.Code.Append(&classfile.VarInsn{Opcode: LoadOpcode(ft), Index: 0})
		nm.Code.Append(&classfile.FieldInsn{Opcode: classfile.OpPutstatic, Owner: c.Class.Name, Name: field.Name, Desc: field.Desc})
		nm.Code.Append(&classfile.SimpleInsn{Opcode: classfile.OpReturn})
		nm.MaxLocals = ft.Size()
	default:
		nm.Code.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0})
		nm.Code.Append(&classfile.VarInsn{Opcode: LoadOpcode(ft), Index: 1})
		nm.Code.Append(&classfile.FieldInsn{Opcode: classfile.OpPutfield, Owner: c.Class.Name, Name: field.Name, Desc: field.Desc})
		nm.Code.Append(&classfile.SimpleInsn{Opcode: classfile.OpReturn})
		nm.MaxLocals = 1 + ft.Size()
	}
	c.Class.Methods = append(c.Class.Methods, nm)
	return true, nil
}

// applyInvoker synthesizes a public synthetic forwarder to a named target
// method, usually a private or synthetic one. Descriptors must match
// exactly; the call opcode follows the callee's shape.
func (c *TargetClassContext) applyInvoker(d *InvokerDirective) (bool, error) {
	callee := c.Class.Method(d.MethodName, d.Handler.Desc)
	if callee == nil {
		return false, fmt.Errorf("%w: method %s%s on %s",
			ErrTargetMissing, d.MethodName, d.Handler.Desc, c.Class.Name)
	}
	if existing := c.Class.Method(d.Handler.Name, d.Handler.Desc); existing != nil {
		log.Warningf("mixin %s on %s: invoker %s%s already exists, skipping",
			c.Mixin.Node.Name, c.Class.Name, d.Handler.Name, d.Handler.Desc)
		return false, nil
	}
	mt, err := classfile.ParseMethodDescriptor(callee.Desc)
	if err != nil {
		return false, err
	}

	calleeStatic := callee.IsStatic()
	private := callee.Access&classfile.AccPrivate != 0
	iface := c.Class.IsInterface()

	var op int
	switch {
	case calleeStatic:
		op = classfile.OpInvokestatic
	case callee.Name == "<init>":
		op = classfile.OpInvokespecial
	case private:
		// Private methods dispatch non-virtually; on interfaces in
		// particular invokeinterface would be rejected.
		op = classfile.OpInvokespecial
	case iface:
		op = classfile.OpInvokeinterface
	default:
		op = classfile.OpInvokevirtual
	}

	access := classfile.AccPublic | classfile.AccSynthetic
	if calleeStatic {
		access |= classfile.AccStatic
	}
	nm := &classfile.MethodNode{Access: access, Name: d.Handler.Name, Desc: d.Handler.Desc}
	nm.Code = classfile.NewInsnList()

	slot := 0
	if !calleeStatic {
		nm.Code.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0})
		slot = 1
	}
	for _, a := range mt.Args {
		nm.Code.Append(&classfile.VarInsn{Opcode: LoadOpcode(a), Index: slot})
		slot += a.Size()
	}
	nm.Code.Append(&classfile.MethodInsn{
		Opcode: op,
		Owner:  c.Class.Name,
		Name:   callee.Name,
		Desc:   callee.Desc,
		Itf:    iface,
	})
	nm.Code.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(mt.Ret)})
	nm.MaxLocals = slot
	c.Class.Methods = append(c.Class.Methods, nm)
	return true, nil
}
