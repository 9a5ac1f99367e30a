// Package asm implements the declarative bytecode transformation engine:
// mixin classes carry directives that describe structural edits, and the
// transformer applies them to target class trees.
package asm

import (
	"strings"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Constant instruction classification
// ---------------------------------------------------------------------------

// IsConstant reports whether the instruction pushes a compile-time
// constant: the fixed const family, ldc, bipush/sipush, or the
// class-producing type instructions (checkcast and instanceof).
func IsConstant(in classfile.Insn) bool {
	switch n := in.(type) {
	case *classfile.SimpleInsn:
		return n.Opcode >= classfile.OpAconstNull && n.Opcode <= classfile.OpDconst1
	case *classfile.IntInsn:
		return n.Opcode == classfile.OpBipush || n.Opcode == classfile.OpSipush
	case *classfile.LdcInsn:
		return true
	case *classfile.TypeInsn:
		return n.Opcode >= classfile.OpCheckcast
	}
	return false
}

// ConstantValue returns the value a constant instruction pushes: nil,
// int32, int64, float32, float64, string, or classfile.Type. The result
// is meaningful only when IsConstant reports true.
func ConstantValue(in classfile.Insn) any {
	switch n := in.(type) {
	case *classfile.SimpleInsn:
		switch n.Opcode {
		case classfile.OpAconstNull:
			return nil
		case classfile.OpIconstM1:
			return int32(-1)
		case classfile.OpIconst0:
			return int32(0)
		case classfile.OpIconst1:
			return int32(1)
		case classfile.OpIconst2:
			return int32(2)
		case classfile.OpIconst3:
			return int32(3)
		case classfile.OpIconst4:
			return int32(4)
		case classfile.OpIconst5:
			return int32(5)
		case classfile.OpLconst0:
			return int64(0)
		case classfile.OpLconst1:
			return int64(1)
		case classfile.OpFconst0:
			return float32(0)
		case classfile.OpFconst1:
			return float32(1)
		case classfile.OpFconst2:
			return float32(2)
		case classfile.OpDconst0:
			return float64(0)
		case classfile.OpDconst1:
			return float64(1)
		}
	case *classfile.IntInsn:
		return int32(n.Value)
	case *classfile.LdcInsn:
		return n.Value
	case *classfile.TypeInsn:
		if t, err := classfile.TypeFromDescriptor(n.Type); err == nil {
			return t
		}
		return classfile.ObjectType(n.Type)
	}
	return nil
}

// ConstantType returns the JVM type the constant occupies on the operand
// stack.
func ConstantType(in classfile.Insn) classfile.Type {
	switch ConstantValue(in).(type) {
	case int32:
		return classfile.Int
	case int64:
		return classfile.Long
	case float32:
		return classfile.Float
	case float64:
		return classfile.Double
	case string:
		return classfile.ObjectType("java/lang/String")
	case classfile.Type:
		return classfile.ObjectType("java/lang/Class")
	}
	return classfile.ObjectType("java/lang/Object")
}

// ---------------------------------------------------------------------------
// Opcode selection by type
// ---------------------------------------------------------------------------

// LoadOpcode returns the xload opcode for a type.
func LoadOpcode(t classfile.Type) int {
	switch t.Sort() {
	case classfile.SortBoolean, classfile.SortChar, classfile.SortByte,
		classfile.SortShort, classfile.SortInt:
		return classfile.OpIload
	case classfile.SortFloat:
		return classfile.OpFload
	case classfile.SortLong:
		return classfile.OpLload
	case classfile.SortDouble:
		return classfile.OpDload
	default:
		return classfile.OpAload
	}
}

// StoreOpcode returns the xstore opcode for a type.
func StoreOpcode(t classfile.Type) int {
	switch t.Sort() {
	case classfile.SortBoolean, classfile.SortChar, classfile.SortByte,
		classfile.SortShort, classfile.SortInt:
		return classfile.OpIstore
	case classfile.SortFloat:
		return classfile.OpFstore
	case classfile.SortLong:
		return classfile.OpLstore
	case classfile.SortDouble:
		return classfile.OpDstore
	default:
		return classfile.OpAstore
	}
}

// ReturnOpcode returns the xreturn opcode for a type.
func ReturnOpcode(t classfile.Type) int {
	switch t.Sort() {
	case classfile.SortVoid:
		return classfile.OpReturn
	case classfile.SortBoolean, classfile.SortChar, classfile.SortByte,
		classfile.SortShort, classfile.SortInt:
		return classfile.OpIreturn
	case classfile.SortFloat:
		return classfile.OpFreturn
	case classfile.SortLong:
		return classfile.OpLreturn
	case classfile.SortDouble:
		return classfile.OpDreturn
	default:
		return classfile.OpAreturn
	}
}

// LoadParam returns the load instruction for a parameter of type t living
// in local slot index.
func LoadParam(t classfile.Type, index int) classfile.Insn {
	return &classfile.VarInsn{Opcode: LoadOpcode(t), Index: index}
}

// wrapper maps a primitive sort to its boxed class and unbox method.
type wrapper struct {
	class  string
	unbox  string
	desc   string // descriptor of the primitive
}

var wrappers = map[classfile.Sort]wrapper{
	classfile.SortBoolean: {"java/lang/Boolean", "booleanValue", "Z"},
	classfile.SortChar:    {"java/lang/Character", "charValue", "C"},
	classfile.SortByte:    {"java/lang/Byte", "byteValue", "B"},
	classfile.SortShort:   {"java/lang/Short", "shortValue", "S"},
	classfile.SortInt:     {"java/lang/Integer", "intValue", "I"},
	classfile.SortFloat:   {"java/lang/Float", "floatValue", "F"},
	classfile.SortLong:    {"java/lang/Long", "longValue", "J"},
	classfile.SortDouble:  {"java/lang/Double", "doubleValue", "D"},
}

// Box returns the instructions converting a primitive on the stack to its
// wrapper object. References pass through untouched.
func Box(t classfile.Type) []classfile.Insn {
	w, ok := wrappers[t.Sort()]
	if !ok {
		return nil
	}
	return []classfile.Insn{&classfile.MethodInsn{
		Opcode: classfile.OpInvokestatic,
		Owner:  w.class,
		Name:   "valueOf",
		Desc:   "(" + w.desc + ")L" + w.class + ";",
	}}
}

// Unbox returns the instructions converting an Object on the stack to the
// given type: checkcast to the wrapper plus the xxxValue call for
// primitives, a plain checkcast for references, and a pop for void.
func Unbox(t classfile.Type) []classfile.Insn {
	switch t.Sort() {
	case classfile.SortVoid:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpPop}}
	case classfile.SortObject:
		return []classfile.Insn{&classfile.TypeInsn{Opcode: classfile.OpCheckcast, Type: t.Internal()}}
	case classfile.SortArray:
		return []classfile.Insn{&classfile.TypeInsn{Opcode: classfile.OpCheckcast, Type: t.Descriptor()}}
	}
	w := wrappers[t.Sort()]
	return []classfile.Insn{
		&classfile.TypeInsn{Opcode: classfile.OpCheckcast, Type: w.class},
		&classfile.MethodInsn{
			Opcode: classfile.OpInvokevirtual,
			Owner:  w.class,
			Name:   w.unbox,
			Desc:   "()" + w.desc,
		},
	}
}

// PushDefault returns instructions pushing the zero value for a type:
// 0, 0L, 0.0f, 0.0, or null. Void pushes nothing.
func PushDefault(t classfile.Type) []classfile.Insn {
	switch t.Sort() {
	case classfile.SortVoid:
		return nil
	case classfile.SortBoolean, classfile.SortChar, classfile.SortByte,
		classfile.SortShort, classfile.SortInt:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpIconst0}}
	case classfile.SortFloat:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpFconst0}}
	case classfile.SortLong:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpLconst0}}
	case classfile.SortDouble:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpDconst0}}
	default:
		return []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpAconstNull}}
	}
}

// IsReturnOpcode reports whether op is one of the xreturn opcodes.
func IsReturnOpcode(op int) bool {
	return op >= classfile.OpIreturn && op <= classfile.OpReturn
}

// ---------------------------------------------------------------------------
// Method signature strings
// ---------------------------------------------------------------------------

// ParseMethodSignature splits a directive's textual method reference into
// owner, name, and descriptor. The owner ends at the rightmost '.' or '/'
// before the '(' ; missing parts come back as empty strings.
//
//	"a/b/C.run(I)V"  → ("a/b/C", "run", "(I)V")
//	"run(I)V"        → ("", "run", "(I)V")
//	"run"            → ("", "run", "")
func ParseMethodSignature(sig string) (owner, name, desc string) {
	head := sig
	if i := strings.IndexByte(sig, '('); i >= 0 {
		head = sig[:i]
		desc = sig[i:]
	}
	cut := strings.LastIndexByte(head, '.')
	if j := strings.LastIndexByte(head, '/'); j > cut {
		cut = j
	}
	if cut >= 0 {
		owner = head[:cut]
		name = head[cut+1:]
	} else {
		name = head
	}
	return owner, name, desc
}
