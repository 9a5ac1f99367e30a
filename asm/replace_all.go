package asm

import (
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Replace-all-methods
// ---------------------------------------------------------------------------

// applyReplaceAllMethods rewrites every eligible method body into a stub
// that forwards through the runtime dispatch surface: the receiver (or
// the class literal for static methods), the owner-and-descriptor string,
// the return type's class, and the boxed argument array go to
// invokeIgnore, whose result is unboxed or checkcast into the declared
// return type.
//
// The no-arg constructor is special-cased: the forwarding call is
// injected before its terminal return so field initialization and the
// super call stay intact, and it is promoted to public. Other
// constructors are left untouched. Interfaces skip abstract instance
// methods but process static ones. Non-static fields lose their final
// flag so replacements may restore state.
func (c *TargetClassContext) applyReplaceAllMethods(d *ReplaceAllMethodsDirective) (bool, error) {
	changed := false
	for _, m := range c.Class.Methods {
		switch {
		case m.Name == "<clinit>":
			continue
		case m.Name == "<init>":
			if m.Desc != "()V" || m.Code == nil {
				continue
			}
			block := c.dispatchStub(m, true)
			returns := returnInsns(m.Code)
			if len(returns) == 0 {
				continue
			}
			m.Code.InsertBefore(returns[len(returns)-1], block.All()...)
			m.Access = m.Access&^(classfile.AccPrivate|classfile.AccProtected) | classfile.AccPublic
			changed = true
			continue
		case c.Class.IsInterface() && !m.IsStatic():
			if m.Access&classfile.AccAbstract != 0 {
				continue
			}
		}

		m.Code = c.dispatchStub(m, false)
		m.TryCatch = nil
		m.LocalVars = nil
		clearBodyFlags(m)
		mt, err := classfile.ParseMethodDescriptor(m.Desc)
		if err != nil {
			return changed, err
		}
		locals := mt.ArgSlots()
		if !m.IsStatic() {
			locals++
		}
		m.MaxLocals = locals
		if d.RemoveSync {
			m.Access &^= classfile.AccSynchronized
		}
		changed = true
	}

	for _, f := range c.Class.Fields {
		if f.Access&classfile.AccStatic == 0 && f.Access&classfile.AccFinal != 0 {
			f.Access &^= classfile.AccFinal
			changed = true
		}
	}
	return changed, nil
}

// dispatchStub builds the forwarding body for one method. When
// inConstructor is set the stub is an insertable block: the dispatch
// result is dropped and no return is emitted.
func (c *TargetClassContext) dispatchStub(m *classfile.MethodNode, inConstructor bool) *classfile.InsnList {
	mt, _ := classfile.ParseMethodDescriptor(m.Desc)
	list := classfile.NewInsnList()

	if m.IsStatic() {
		list.Append(classLiteral(classfile.ObjectType(c.Class.Name)))
	} else {
		list.Append(&classfile.VarInsn{Opcode: classfile.OpAload, Index: 0})
	}
	list.Append(&classfile.LdcInsn{Value: c.Class.Name + "." + m.Name + m.Desc})
	list.Append(classLiteral(mt.Ret))

	list.Append(pushInt(len(mt.Args)))
	list.Append(&classfile.TypeInsn{Opcode: classfile.OpAnewarray, Type: "java/lang/Object"})
	slot := 0
	if !m.IsStatic() {
		slot = 1
	}
	for i, a := range mt.Args {
		list.Append(&classfile.SimpleInsn{Opcode: classfile.OpDup})
		list.Append(pushInt(i))
		list.Append(&classfile.VarInsn{Opcode: LoadOpcode(a), Index: slot})
		list.Append(Box(a)...)
		list.Append(&classfile.SimpleInsn{Opcode: classfile.OpAastore})
		slot += a.Size()
	}

	list.Append(&classfile.MethodInsn{
		Opcode: classfile.OpInvokestatic,
		Owner:  InvokeDispatcherClass,
		Name:   "invokeIgnore",
		Desc:   InvokeDesc,
	})

	if inConstructor {
		list.Append(&classfile.SimpleInsn{Opcode: classfile.OpPop})
		return list
	}
	list.Append(Unbox(mt.Ret)...)
	list.Append(&classfile.SimpleInsn{Opcode: ReturnOpcode(mt.Ret)})
	return list
}
