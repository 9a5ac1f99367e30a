package classfile

// ---------------------------------------------------------------------------
// Typed instruction nodes
// ---------------------------------------------------------------------------

// Insn is a single node in a method's instruction list. Concrete node types
// are always used through pointers, so node identity is pointer identity.
type Insn interface {
	// Op returns the opcode, or -1 for pseudo-instructions (labels and
	// line numbers).
	Op() int
	// cloneInsn copies the node, mapping label references through m.
	// Labels absent from m are carried over unchanged.
	cloneInsn(m map[*Label]*Label) Insn
}

// Label is a position marker. Jumps, switches, try/catch ranges,
// local-variable ranges, and line numbers refer to labels by identity.
type Label struct {
	// offset is the resolved bytecode offset, valid only during
	// assembly and after parsing.
	offset int
}

func (l *Label) Op() int { return -1 }
func (l *Label) cloneInsn(m map[*Label]*Label) Insn { return mapLabel(m, l) }

func mapLabel(m map[*Label]*Label, l *Label) *Label {
	if l == nil {
		return nil
	}
	if r, ok := m[l]; ok {
		return r
	}
	return l
}

// SimpleInsn is an instruction without operands.
type SimpleInsn struct {
	Opcode int
}

func (i *SimpleInsn) Op() int { return i.Opcode }
func (i *SimpleInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// IntInsn is bipush, sipush, or newarray.
type IntInsn struct {
	Opcode int
	Value  int
}

func (i *IntInsn) Op() int { return i.Opcode }
func (i *IntInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// VarInsn is a local-variable load or store.
type VarInsn struct {
	Opcode int
	Index  int
}

func (i *VarInsn) Op() int { return i.Opcode }
func (i *VarInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// TypeInsn is new, anewarray, checkcast, or instanceof. Type is an internal
// name, or a full array descriptor for array types.
type TypeInsn struct {
	Opcode int
	Type   string
}

func (i *TypeInsn) Op() int { return i.Opcode }
func (i *TypeInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// FieldInsn is getfield, putfield, getstatic, or putstatic.
type FieldInsn struct {
	Opcode int
	Owner  string // internal name
	Name   string
	Desc   string
}

func (i *FieldInsn) Op() int { return i.Opcode }
func (i *FieldInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// MethodInsn is invokevirtual, invokespecial, invokestatic, or
// invokeinterface.
type MethodInsn struct {
	Opcode int
	Owner  string // internal name
	Name   string
	Desc   string
	Itf    bool // owner is an interface
}

func (i *MethodInsn) Op() int { return i.Opcode }
func (i *MethodInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// InvokeDynamicInsn is an invokedynamic call site.
type InvokeDynamicInsn struct {
	Name    string
	Desc    string
	BSM     Handle
	BSMArgs []any // constant-pool loadable values, as in LdcInsn
}

func (i *InvokeDynamicInsn) Op() int { return OpInvokedynamic }
func (i *InvokeDynamicInsn) cloneInsn(map[*Label]*Label) Insn {
	c := *i
	c.BSMArgs = append([]any(nil), i.BSMArgs...)
	return &c
}

// Handle is a constant-pool method handle.
type Handle struct {
	Kind  int // reference kind, 1..9
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

// JumpInsn is a conditional or unconditional branch.
type JumpInsn struct {
	Opcode int
	Target *Label
}

func (i *JumpInsn) Op() int { return i.Opcode }
func (i *JumpInsn) cloneInsn(m map[*Label]*Label) Insn {
	return &JumpInsn{Opcode: i.Opcode, Target: mapLabel(m, i.Target)}
}

// LdcInsn loads a constant-pool value. Value is one of int32, int64,
// float32, float64, string, Type, or Handle.
type LdcInsn struct {
	Value any
}

func (i *LdcInsn) Op() int { return OpLdc }
func (i *LdcInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// IincInsn increments a local variable.
type IincInsn struct {
	Index int
	Delta int
}

func (i *IincInsn) Op() int { return OpIinc }
func (i *IincInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// TableSwitchInsn is a dense switch.
type TableSwitchInsn struct {
	Low     int
	High    int
	Default *Label
	Targets []*Label
}

func (i *TableSwitchInsn) Op() int { return OpTableswitch }
func (i *TableSwitchInsn) cloneInsn(m map[*Label]*Label) Insn {
	c := &TableSwitchInsn{Low: i.Low, High: i.High, Default: mapLabel(m, i.Default)}
	c.Targets = make([]*Label, len(i.Targets))
	for j, t := range i.Targets {
		c.Targets[j] = mapLabel(m, t)
	}
	return c
}

// LookupSwitchInsn is a sparse switch.
type LookupSwitchInsn struct {
	Default *Label
	Keys    []int
	Targets []*Label
}

func (i *LookupSwitchInsn) Op() int { return OpLookupswitch }
func (i *LookupSwitchInsn) cloneInsn(m map[*Label]*Label) Insn {
	c := &LookupSwitchInsn{Default: mapLabel(m, i.Default)}
	c.Keys = append([]int(nil), i.Keys...)
	c.Targets = make([]*Label, len(i.Targets))
	for j, t := range i.Targets {
		c.Targets[j] = mapLabel(m, t)
	}
	return c
}

// MultiANewArrayInsn allocates a multi-dimensional array. Desc is the full
// array type descriptor.
type MultiANewArrayInsn struct {
	Desc string
	Dims int
}

func (i *MultiANewArrayInsn) Op() int { return OpMultianewarray }
func (i *MultiANewArrayInsn) cloneInsn(map[*Label]*Label) Insn { c := *i; return &c }

// LineInsn records a source line starting at the following instruction.
type LineInsn struct {
	Line  int
	Start *Label
}

func (i *LineInsn) Op() int { return -1 }
func (i *LineInsn) cloneInsn(m map[*Label]*Label) Insn {
	return &LineInsn{Line: i.Line, Start: mapLabel(m, i.Start)}
}

// ---------------------------------------------------------------------------
// InsnList
// ---------------------------------------------------------------------------

// InsnList is an ordered instruction sequence. Positional edits address
// nodes by identity; all mutation helpers are O(n) in the list length,
// which stays negligible at method scale.
type InsnList struct {
	insns []Insn
}

// NewInsnList returns an empty list.
func NewInsnList() *InsnList { return &InsnList{} }

// Len returns the number of nodes.
func (l *InsnList) Len() int { return len(l.insns) }

// At returns the i-th node.
func (l *InsnList) At(i int) Insn { return l.insns[i] }

// First returns the first node, or nil if the list is empty.
func (l *InsnList) First() Insn {
	if len(l.insns) == 0 {
		return nil
	}
	return l.insns[0]
}

// Last returns the last node, or nil if the list is empty.
func (l *InsnList) Last() Insn {
	if len(l.insns) == 0 {
		return nil
	}
	return l.insns[len(l.insns)-1]
}

// All returns the backing slice for iteration. Callers must not mutate
// the list while ranging over it; take a Copy first when splicing.
func (l *InsnList) All() []Insn { return l.insns }

// Copy returns a snapshot of the node sequence (the nodes are shared).
func (l *InsnList) Copy() []Insn { return append([]Insn(nil), l.insns...) }

// Append adds nodes at the end.
func (l *InsnList) Append(ins ...Insn) { l.insns = append(l.insns, ins...) }

// Prepend adds nodes at the front, preserving their order.
func (l *InsnList) Prepend(ins ...Insn) {
	l.insns = append(append([]Insn(nil), ins...), l.insns...)
}

// Clear removes every node.
func (l *InsnList) Clear() { l.insns = nil }

// IndexOf returns the position of the node, or -1.
func (l *InsnList) IndexOf(target Insn) int {
	for i, in := range l.insns {
		if in == target {
			return i
		}
	}
	return -1
}

// InsertBefore inserts nodes immediately before target. It is a no-op if
// target is not in the list.
func (l *InsnList) InsertBefore(target Insn, ins ...Insn) {
	i := l.IndexOf(target)
	if i < 0 {
		return
	}
	l.insns = append(l.insns[:i], append(append([]Insn(nil), ins...), l.insns[i:]...)...)
}

// InsertAfter inserts nodes immediately after target. It is a no-op if
// target is not in the list.
func (l *InsnList) InsertAfter(target Insn, ins ...Insn) {
	i := l.IndexOf(target)
	if i < 0 {
		return
	}
	i++
	l.insns = append(l.insns[:i], append(append([]Insn(nil), ins...), l.insns[i:]...)...)
}

// Remove deletes the node from the list.
func (l *InsnList) Remove(target Insn) {
	i := l.IndexOf(target)
	if i < 0 {
		return
	}
	l.insns = append(l.insns[:i], l.insns[i+1:]...)
}

// Replace substitutes each node keyed in repl with the given sequence
// (nil deletes the node), in a single rebuild pass.
func (l *InsnList) Replace(repl map[Insn][]Insn) {
	out := make([]Insn, 0, len(l.insns))
	for _, in := range l.insns {
		if seq, ok := repl[in]; ok {
			out = append(out, seq...)
		} else {
			out = append(out, in)
		}
	}
	l.insns = out
}

// Clone deep-copies the list with a fresh label for every label node,
// returning the new list and the old→new label map. Label references held
// by cloned instructions are remapped through the same map.
func (l *InsnList) Clone() (*InsnList, map[*Label]*Label) {
	labels := make(map[*Label]*Label)
	for _, in := range l.insns {
		if lab, ok := in.(*Label); ok {
			labels[lab] = &Label{}
		}
	}
	out := make([]Insn, len(l.insns))
	for i, in := range l.insns {
		out[i] = in.cloneInsn(labels)
	}
	return &InsnList{insns: out}, labels
}
