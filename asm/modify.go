package asm

import (
	"fmt"
	"strconv"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Modify family: argument, return value, constant
// ---------------------------------------------------------------------------

// applyModifyArg rewrites parameter Index at method entry: the parameter
// is loaded, passed through the handler, and stored back into its slot.
// The handler must map the parameter type onto itself.
func (c *TargetClassContext) applyModifyArg(d *ModifyArgDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}
	slots, args, err := paramSlots(tm)
	if err != nil {
		return false, err
	}
	if d.Index < 0 || d.Index >= len(args) {
		return false, fmt.Errorf("%w: argument index %d out of range (target has %d)",
			ErrDirectiveShape, d.Index, len(args))
	}
	pt := args[d.Index]
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}
	if len(hType.Args) != 1 || hType.Args[0].Descriptor() != pt.Descriptor() ||
		hType.Ret.Descriptor() != pt.Descriptor() {
		return false, fmt.Errorf("%w: handler %s%s must map (%s) onto itself",
			ErrSignatureMismatch, d.Handler.Name, d.Handler.Desc, pt.Descriptor())
	}

	block := classfile.NewInsnList()
	block.Append(c.loadHandlerReceiver(d.Handler)...)
	block.Append(&classfile.VarInsn{Opcode: LoadOpcode(pt), Index: slots[d.Index]})
	block.Append(c.invokeHandlerInsn(d.Handler))
	block.Append(&classfile.VarInsn{Opcode: StoreOpcode(pt), Index: slots[d.Index]})
	tm.Code.Prepend(block.All()...)
	return true, nil
}

// applyModifyReturnValue routes the outgoing value of every non-void
// return through the handler: the value is duplicated by category and
// parked in a fresh local, the handler receives it (plus any mapped
// target parameters), and its result replaces the original on the stack.
func (c *TargetClassContext) applyModifyReturnValue(d *ModifyReturnValueDirective) (bool, error) {
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
	if ret.Sort() == classfile.SortVoid {
		return false, fmt.Errorf("%w: target %s returns void", ErrDirectiveShape, d.Key)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}
	if len(hType.Args) == 0 || hType.Args[0].Descriptor() != ret.Descriptor() ||
		hType.Ret.Descriptor() != ret.Descriptor() {
		return false, fmt.Errorf("%w: handler %s%s must take and return %s",
			ErrSignatureMismatch, d.Handler.Name, d.Handler.Desc, ret.Descriptor())
	}

	for _, r := range returnInsns(tm.Code) {
		saved := tm.MaxLocals
		tm.MaxLocals += ret.Size()

		block := classfile.NewInsnList()
		block.Append(dupOf(ret))
		block.Append(&classfile.VarInsn{Opcode: StoreOpcode(ret), Index: saved})
		if !d.Handler.IsStatic() {
			// A static handler consumes the duplicated value in place;
			// an instance handler needs its receiver underneath it.
			block.Append(popOf(ret)...)
			block.Append(c.loadHandlerReceiver(d.Handler)...)
			block.Append(&classfile.VarInsn{Opcode: LoadOpcode(ret), Index: saved})
		}
		extras, err := extraHandlerArgs(d.Handler, tm, 1)
		if err != nil {
			return false, err
		}
		block.Append(extras...)
		block.Append(c.invokeHandlerInsn(d.Handler))
		tm.Code.InsertBefore(r, block.All()...)
	}
	return true, nil
}

// applyModifyConstant replaces matching constants whose type equals the
// handler's return type: the original constant stays as the handler's
// input and the handler's result takes its place on the stack.
func (c *TargetClassContext) applyModifyConstant(d *ModifyConstantDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	if tm.Code == nil {
		return false, errNoBody(d.Key)
	}
	hType, err := classfile.ParseMethodDescriptor(d.Handler.Desc)
	if err != nil {
		return false, err
	}
	want := hType.Ret
	if len(hType.Args) != 1 || hType.Args[0].Descriptor() != want.Descriptor() {
		return false, fmt.Errorf("%w: handler %s%s must map (%s) onto itself",
			ErrSignatureMismatch, d.Handler.Name, d.Handler.Desc, want.Descriptor())
	}

	matched := false
	for _, in := range tm.Code.Copy() {
		if !IsConstant(in) {
			continue
		}
		if ConstantType(in).Descriptor() != want.Descriptor() {
			continue
		}
		if d.Constant != "" && !literalMatches(ConstantValue(in), d.Constant) {
			continue
		}
		matched = true

		block := classfile.NewInsnList()
		if d.Handler.IsStatic() {
			block.Append(c.invokeHandlerInsn(d.Handler))
		} else {
			saved := tm.MaxLocals
			tm.MaxLocals += want.Size()
			block.Append(&classfile.VarInsn{Opcode: StoreOpcode(want), Index: saved})
			block.Append(c.loadHandlerReceiver(d.Handler)...)
			block.Append(&classfile.VarInsn{Opcode: LoadOpcode(want), Index: saved})
			block.Append(c.invokeHandlerInsn(d.Handler))
		}
		tm.Code.InsertAfter(in, block.All()...)
	}
	if !matched {
		return false, fmt.Errorf("%w: no constant of type %s matches %q in %s",
			ErrTargetMissing, want.Descriptor(), d.Constant, d.Key)
	}
	return true, nil
}

// literalMatches compares a constant value against its directive literal:
// numeric and string equality, class constants by internal name.
func literalMatches(v any, literal string) bool {
	switch c := v.(type) {
	case string:
		return c == literal
	case int32:
		n, err := strconv.ParseInt(literal, 10, 32)
		return err == nil && int32(n) == c
	case int64:
		n, err := strconv.ParseInt(literal, 10, 64)
		return err == nil && n == c
	case float32:
		f, err := strconv.ParseFloat(literal, 32)
		return err == nil && float32(f) == c
	case float64:
		f, err := strconv.ParseFloat(literal, 64)
		return err == nil && f == c
	case classfile.Type:
		return c.Internal() == literal
	}
	return false
}
