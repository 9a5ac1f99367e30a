package classfile

import "strings"

// ---------------------------------------------------------------------------
// Class tree nodes
// ---------------------------------------------------------------------------

// ClassNode is the mutable tree form of one classfile.
type ClassNode struct {
	MinorVersion int
	MajorVersion int
	Access       int
	Name         string // internal name
	SuperName    string // internal name; "" only for java/lang/Object
	Interfaces   []string
	SourceFile   string

	Fields  []*FieldNode
	Methods []*MethodNode

	VisibleAnnotations []Annotation

	// Attrs carries class-level attributes this package does not model,
	// preserved verbatim for round-tripping.
	Attrs []RawAttribute
}

// FieldNode is one field declaration.
type FieldNode struct {
	Access int
	Name   string
	Desc   string

	// ConstantValue for static finals; one of int32, int64, float32,
	// float64, string, or nil.
	ConstantValue any

	VisibleAnnotations []Annotation
	Attrs              []RawAttribute
}

// MethodNode is one method declaration, with its code in tree form.
type MethodNode struct {
	Access     int
	Name       string
	Desc       string
	Exceptions []string // internal names of declared thrown types

	Code      *InsnList // nil for abstract and native methods
	TryCatch  []*TryCatchBlock
	LocalVars []*LocalVar
	Params    []Parameter
	MaxStack  int
	MaxLocals int

	VisibleAnnotations []Annotation
}

// TryCatchBlock is a protected range. Type is the internal name of the
// caught class, or "" for finally.
type TryCatchBlock struct {
	Start   *Label
	End     *Label
	Handler *Label
	Type    string
}

// LocalVar is one LocalVariableTable entry.
type LocalVar struct {
	Name  string
	Desc  string
	Start *Label
	End   *Label
	Index int
}

// Parameter is one MethodParameters entry.
type Parameter struct {
	Name   string
	Access int
}

// RawAttribute is an unmodeled attribute kept as bytes.
type RawAttribute struct {
	Name string
	Data []byte
}

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

// Annotation is one runtime-visible annotation.
type Annotation struct {
	// Desc is the annotation type descriptor, e.g. "Lcom/relay/asm/annotation/AsmMixin;".
	Desc   string
	Values []AnnotationValue
}

// AnnotationValue is one element-value pair. Value is one of:
// int32/int64/float32/float64/string (constants), Type (class values),
// EnumValue, Annotation (nested), or []any (arrays of the above).
type AnnotationValue struct {
	Name  string
	Value any
}

// EnumValue is an enum-typed annotation element.
type EnumValue struct {
	TypeDesc string
	Name     string
}

// TypeName returns the annotation's internal type name.
func (a Annotation) TypeName() string {
	d := a.Desc
	if strings.HasPrefix(d, "L") && strings.HasSuffix(d, ";") {
		return d[1 : len(d)-1]
	}
	return d
}

// Get returns the named element value, or nil.
func (a Annotation) Get(name string) any {
	for _, v := range a.Values {
		if v.Name == name {
			return v.Value
		}
	}
	return nil
}

// GetString returns the named element as a string, or def when absent.
func (a Annotation) GetString(name, def string) string {
	if s, ok := a.Get(name).(string); ok {
		return s
	}
	return def
}

// GetInt returns the named element as an int, or def when absent.
func (a Annotation) GetInt(name string, def int) int {
	if v, ok := a.Get(name).(int32); ok {
		return int(v)
	}
	return def
}

// GetBool returns the named element as a bool, or def when absent.
// Classfile booleans are stored as integers.
func (a Annotation) GetBool(name string, def bool) bool {
	if v, ok := a.Get(name).(int32); ok {
		return v != 0
	}
	return def
}

// GetEnum returns the named element's enum constant name, or def.
func (a Annotation) GetEnum(name, def string) string {
	if e, ok := a.Get(name).(EnumValue); ok {
		return e.Name
	}
	return def
}

// GetStrings returns the named element as a string slice; a scalar string
// is returned as a one-element slice.
func (a Annotation) GetStrings(name string) []string {
	switch v := a.Get(name).(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetAnnotation returns the named element as a nested annotation.
func (a Annotation) GetAnnotation(name string) (Annotation, bool) {
	if n, ok := a.Get(name).(Annotation); ok {
		return n, true
	}
	return Annotation{}, false
}

// ---------------------------------------------------------------------------
// Node helpers
// ---------------------------------------------------------------------------

// IsInterface reports whether the class is an interface.
func (c *ClassNode) IsInterface() bool { return c.Access&AccInterface != 0 }

// Method finds a method by name and descriptor, or by name alone when
// desc is empty. Returns nil when absent.
func (c *ClassNode) Method(name, desc string) *MethodNode {
	for _, m := range c.Methods {
		if m.Name == name && (desc == "" || m.Desc == desc) {
			return m
		}
	}
	return nil
}

// Field finds a field by name. Returns nil when absent.
func (c *ClassNode) Field(name string) *FieldNode {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// MethodKeys lists "name+desc" keys for every method, for diagnostics.
func (c *ClassNode) MethodKeys() []string {
	keys := make([]string, len(c.Methods))
	for i, m := range c.Methods {
		keys[i] = m.Name + m.Desc
	}
	return keys
}

// SimpleName returns the class name after the last '/' and '$'.
func (c *ClassNode) SimpleName() string {
	n := c.Name
	if i := strings.LastIndexByte(n, '/'); i >= 0 {
		n = n[i+1:]
	}
	if i := strings.LastIndexByte(n, '$'); i >= 0 {
		n = n[i+1:]
	}
	return n
}

// IsStatic reports whether the method is static.
func (m *MethodNode) IsStatic() bool { return m.Access&AccStatic != 0 }

// Annotation returns the first visible annotation with the given internal
// type name.
func (m *MethodNode) Annotation(typeName string) (Annotation, bool) {
	return findAnnotation(m.VisibleAnnotations, typeName)
}

// Annotation returns the first visible annotation with the given internal
// type name.
func (f *FieldNode) Annotation(typeName string) (Annotation, bool) {
	return findAnnotation(f.VisibleAnnotations, typeName)
}

// Annotation returns the first visible annotation with the given internal
// type name.
func (c *ClassNode) Annotation(typeName string) (Annotation, bool) {
	return findAnnotation(c.VisibleAnnotations, typeName)
}

func findAnnotation(anns []Annotation, typeName string) (Annotation, bool) {
	for _, a := range anns {
		if a.TypeName() == typeName {
			return a, true
		}
	}
	return Annotation{}, false
}
