package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// JVM type model
// ---------------------------------------------------------------------------

// Sort classifies a Type.
type Sort int

const (
	SortVoid Sort = iota
	SortBoolean
	SortChar
	SortByte
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortObject
	SortArray
)

var (
	ErrBadDescriptor = errors.New("malformed type descriptor")
)

// Type is an immutable JVM type, backed by its descriptor.
type Type struct {
	sort Sort
	desc string
}

// Predefined primitive types.
var (
	Void    = Type{SortVoid, "V"}
	Boolean = Type{SortBoolean, "Z"}
	Char    = Type{SortChar, "C"}
	Byte    = Type{SortByte, "B"}
	Short   = Type{SortShort, "S"}
	Int     = Type{SortInt, "I"}
	Float   = Type{SortFloat, "F"}
	Long    = Type{SortLong, "J"}
	Double  = Type{SortDouble, "D"}
)

// ObjectType returns the Type for an internal class name (a/b/C).
func ObjectType(internal string) Type {
	return Type{SortObject, "L" + internal + ";"}
}

// TypeFromDescriptor parses a single field descriptor.
func TypeFromDescriptor(desc string) (Type, error) {
	t, rest, err := readType(desc)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, rest, desc)
	}
	return t, nil
}

// MustType parses a descriptor known to be valid; it panics otherwise.
// Intended for compile-time constants.
func MustType(desc string) Type {
	t, err := TypeFromDescriptor(desc)
	if err != nil {
		panic(err)
	}
	return t
}

func readType(s string) (Type, string, error) {
	if s == "" {
		return Type{}, "", ErrBadDescriptor
	}
	switch s[0] {
	case 'V':
		return Void, s[1:], nil
	case 'Z':
		return Boolean, s[1:], nil
	case 'C':
		return Char, s[1:], nil
	case 'B':
		return Byte, s[1:], nil
	case 'S':
		return Short, s[1:], nil
	case 'I':
		return Int, s[1:], nil
	case 'F':
		return Float, s[1:], nil
	case 'J':
		return Long, s[1:], nil
	case 'D':
		return Double, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return Type{}, "", fmt.Errorf("%w: unterminated object type %q", ErrBadDescriptor, s)
		}
		return Type{SortObject, s[:end+1]}, s[end+1:], nil
	case '[':
		elem, rest, err := readType(s[1:])
		if err != nil {
			return Type{}, "", err
		}
		return Type{SortArray, "[" + elem.desc}, rest, nil
	}
	return Type{}, "", fmt.Errorf("%w: %q", ErrBadDescriptor, s)
}

// Sort returns the type's sort.
func (t Type) Sort() Sort { return t.sort }

// Descriptor returns the JVM descriptor string.
func (t Type) Descriptor() string { return t.desc }

// IsPrimitive reports whether the type is a primitive (including void).
func (t Type) IsPrimitive() bool { return t.sort < SortObject }

// IsRef reports whether the type is an object or array type.
func (t Type) IsRef() bool { return t.sort == SortObject || t.sort == SortArray }

// Size returns the number of local-variable/stack slots the type occupies:
// 2 for long and double, 0 for void, 1 otherwise.
func (t Type) Size() int {
	switch t.sort {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	default:
		return 1
	}
}

// Internal returns the internal name for object types, and the full
// descriptor for array types (the form used by checkcast and anewarray).
func (t Type) Internal() string {
	if t.sort == SortObject {
		return t.desc[1 : len(t.desc)-1]
	}
	return t.desc
}

// Elem returns the element type of an array type.
func (t Type) Elem() (Type, error) {
	if t.sort != SortArray {
		return Type{}, fmt.Errorf("%w: Elem of non-array %q", ErrBadDescriptor, t.desc)
	}
	return TypeFromDescriptor(t.desc[1:])
}

// String implements fmt.Stringer.
func (t Type) String() string { return t.desc }

// IsZero reports whether t is the zero Type (no descriptor).
func (t Type) IsZero() bool { return t.desc == "" }

// ---------------------------------------------------------------------------
// Method descriptors
// ---------------------------------------------------------------------------

// MethodType is a parsed method descriptor.
type MethodType struct {
	Args []Type
	Ret  Type
}

// ParseMethodDescriptor parses a "(args)ret" descriptor.
func ParseMethodDescriptor(desc string) (MethodType, error) {
	if desc == "" || desc[0] != '(' {
		return MethodType{}, fmt.Errorf("%w: method descriptor %q", ErrBadDescriptor, desc)
	}
	rest := desc[1:]
	var args []Type
	for rest != "" && rest[0] != ')' {
		t, r, err := readType(rest)
		if err != nil {
			return MethodType{}, fmt.Errorf("%w in %q", err, desc)
		}
		args = append(args, t)
		rest = r
	}
	if rest == "" {
		return MethodType{}, fmt.Errorf("%w: unterminated method descriptor %q", ErrBadDescriptor, desc)
	}
	ret, r, err := readType(rest[1:])
	if err != nil {
		return MethodType{}, fmt.Errorf("%w in %q", err, desc)
	}
	if r != "" {
		return MethodType{}, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, r, desc)
	}
	return MethodType{Args: args, Ret: ret}, nil
}

// ArgSlots returns the number of local slots the arguments occupy,
// not counting a receiver.
func (m MethodType) ArgSlots() int {
	n := 0
	for _, a := range m.Args {
		n += a.Size()
	}
	return n
}

// Descriptor rebuilds the textual descriptor.
func (m MethodType) Descriptor() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range m.Args {
		b.WriteString(a.Descriptor())
	}
	b.WriteByte(')')
	b.WriteString(m.Ret.Descriptor())
	return b.String()
}
