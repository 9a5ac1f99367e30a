package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Directive model
// ---------------------------------------------------------------------------

// InjectPoint selects where an inject handler runs.
type InjectPoint int

const (
	PointHead InjectPoint = iota
	PointTail
	PointReturn
	PointInvoke
)

func (p InjectPoint) String() string {
	switch p {
	case PointHead:
		return "HEAD"
	case PointTail:
		return "TAIL"
	case PointReturn:
		return "RETURN"
	case PointInvoke:
		return "INVOKE"
	}
	return fmt.Sprintf("InjectPoint(%d)", int(p))
}

// Shift positions an invoke-point edit relative to the matched call.
type Shift int

const (
	ShiftBefore Shift = iota
	ShiftAfter
	ShiftReplace
)

// At narrows an injection point to a member reference inside the target
// method body.
type At struct {
	Value  string // point kind, e.g. "INVOKE"
	Target string // member signature the point anchors on
	Shift  Shift
	By     int
	Args   []string
}

// Slice restricts matching to a region of the target method.
type Slice struct {
	From string
	To   string
	ID   string
}

// MethodKey identifies a target method. An empty Desc matches by name
// alone.
type MethodKey struct {
	Name string
	Desc string
}

func (k MethodKey) String() string { return k.Name + k.Desc }

// Directive is one declarative edit derived from mixin metadata. Concrete
// variants carry their own parameters; the context dispatches on type.
type Directive interface {
	// Target returns the method key the directive applies to; the zero
	// key means the directive is not method-scoped.
	Target() MethodKey
	// Describe renders the directive for diagnostics and reports.
	Describe() string
}

// handlerDirective is the common part of method-handler directives.
type handlerDirective struct {
	Key     MethodKey
	Handler *classfile.MethodNode
}

func (d *handlerDirective) Target() MethodKey { return d.Key }

// InjectDirective runs a handler at HEAD, TAIL, RETURN, or INVOKE points.
type InjectDirective struct {
	handlerDirective
	Point       InjectPoint
	Cancellable bool
	At          At
	Slice       Slice
	Ordinal     int // -1 matches every occurrence
	Inline      bool
	Require     int // minimum matched sites; 0 means no demand
	Expect      int // expected matched sites; a shortfall only warns
	Allow       int // maximum matched sites; 0 means unbounded
}

func (d *InjectDirective) Describe() string {
	return fmt.Sprintf("inject %s@%s via %s%s", d.Key, d.Point, d.Handler.Name, d.Handler.Desc)
}

// OverwriteDirective replaces a target method body with the handler's.
type OverwriteDirective struct {
	handlerDirective
}

func (d *OverwriteDirective) Describe() string {
	return fmt.Sprintf("overwrite %s via %s%s", d.Key, d.Handler.Name, d.Handler.Desc)
}

// ModifyArgDirective rewrites parameter Index at method entry.
type ModifyArgDirective struct {
	handlerDirective
	Index int
	At    At
	Slice Slice
}

func (d *ModifyArgDirective) Describe() string {
	return fmt.Sprintf("modify-arg %s[%d] via %s%s", d.Key, d.Index, d.Handler.Name, d.Handler.Desc)
}

// ModifyReturnValueDirective rewrites the value at each non-void return.
type ModifyReturnValueDirective struct {
	handlerDirective
	At At
}

func (d *ModifyReturnValueDirective) Describe() string {
	return fmt.Sprintf("modify-return %s via %s%s", d.Key, d.Handler.Name, d.Handler.Desc)
}

// ModifyConstantDirective rewrites matching constants in the target body.
type ModifyConstantDirective struct {
	handlerDirective
	Constant string // literal form to match; "" matches by type alone
}

func (d *ModifyConstantDirective) Describe() string {
	return fmt.Sprintf("modify-constant %s via %s%s", d.Key, d.Handler.Name, d.Handler.Desc)
}

// RedirectDirective replaces matching invocations with a handler call.
type RedirectDirective struct {
	handlerDirective
	At    At
	Slice Slice
}

func (d *RedirectDirective) Describe() string {
	return fmt.Sprintf("redirect %s at %q via %s%s", d.Key, d.At.Target, d.Handler.Name, d.Handler.Desc)
}

// AccessorDirective synthesizes a getter or setter for a target field.
type AccessorDirective struct {
	handlerDirective
	FieldName string
}

func (d *AccessorDirective) Describe() string {
	return fmt.Sprintf("accessor %q via %s%s", d.FieldName, d.Handler.Name, d.Handler.Desc)
}

// InvokerDirective synthesizes a forwarder to a target method.
type InvokerDirective struct {
	handlerDirective
	MethodName string
}

func (d *InvokerDirective) Describe() string {
	return fmt.Sprintf("invoker %q via %s%s", d.MethodName, d.Handler.Name, d.Handler.Desc)
}

// CopyDirective copies the handler body onto the target as a new method.
type CopyDirective struct {
	handlerDirective
}

func (d *CopyDirective) Describe() string {
	return fmt.Sprintf("copy %s%s as %s", d.Handler.Name, d.Handler.Desc, d.Key)
}

// ShadowDirective declares a mixin member standing in for a target member;
// it produces no edit of its own but drives reference rebinding.
type ShadowDirective struct {
	Key    MethodKey
	Method *classfile.MethodNode
	Field  *classfile.FieldNode
}

func (d *ShadowDirective) Target() MethodKey { return d.Key }
func (d *ShadowDirective) Describe() string {
	if d.Field != nil {
		return fmt.Sprintf("shadow field %s", d.Field.Name)
	}
	return fmt.Sprintf("shadow method %s", d.Key)
}

// RemoveMethodDirective drops a method from the target class.
type RemoveMethodDirective struct {
	Key MethodKey
}

func (d *RemoveMethodDirective) Target() MethodKey { return d.Key }
func (d *RemoveMethodDirective) Describe() string {
	return fmt.Sprintf("remove-method %s", d.Key)
}

// RemoveSynchronizedDirective strips synchronization from a method.
type RemoveSynchronizedDirective struct {
	Key MethodKey
}

func (d *RemoveSynchronizedDirective) Target() MethodKey { return d.Key }
func (d *RemoveSynchronizedDirective) Describe() string {
	return fmt.Sprintf("remove-synchronized %s", d.Key)
}

// ReplaceAllMethodsDirective rewrites every method body to forward through
// the runtime dispatch surface.
type ReplaceAllMethodsDirective struct {
	RemoveSync bool
}

func (d *ReplaceAllMethodsDirective) Target() MethodKey { return MethodKey{} }
func (d *ReplaceAllMethodsDirective) Describe() string  { return "replace-all-methods" }

// MutableDirective clears the final flag of a shadowed target field.
type MutableDirective struct {
	FieldName string
}

func (d *MutableDirective) Target() MethodKey { return MethodKey{} }
func (d *MutableDirective) Describe() string  { return fmt.Sprintf("mutable %s", d.FieldName) }

// FinalDirective sets the final flag of a shadowed target field.
type FinalDirective struct {
	FieldName string
}

func (d *FinalDirective) Target() MethodKey { return MethodKey{} }
func (d *FinalDirective) Describe() string  { return fmt.Sprintf("final %s", d.FieldName) }
