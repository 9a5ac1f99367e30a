package classfile

import (
	"errors"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Verification-type dataflow: max_stack and StackMapTable
// ---------------------------------------------------------------------------

var (
	ErrUnverifiable = errors.New("cannot compute stack map")
	ErrJsrRet       = errors.New("jsr/ret bytecode is not supported")
)

// SuperclassResolver answers common-superclass queries during frame merges.
// Implementations typically consult the class path; the default join is
// java/lang/Object, which is always a legal upper bound.
type SuperclassResolver interface {
	CommonSuperclass(a, b string) string
}

// ObjectJoin is the resolver used when none is supplied.
type ObjectJoin struct{}

func (ObjectJoin) CommonSuperclass(a, b string) string {
	if a == b {
		return a
	}
	return "java/lang/Object"
}

type vkind uint8

const (
	vTop vkind = iota
	vInt
	vFloat
	vLong
	vDouble
	vNull
	vUninitThis
	vObject
	vUninit
)

// vtype is one verification type. name holds the internal name (or array
// descriptor) for vObject; newPC the offset of the allocating new
// instruction for vUninit.
type vtype struct {
	kind  vkind
	name  string
	newPC int
}

var (
	vtTop    = vtype{kind: vTop}
	vtInt    = vtype{kind: vInt}
	vtFloat  = vtype{kind: vFloat}
	vtLong   = vtype{kind: vLong}
	vtDouble = vtype{kind: vDouble}
	vtNull   = vtype{kind: vNull}
)

func vtObject(name string) vtype { return vtype{kind: vObject, name: name} }

func (t vtype) size() int {
	if t.kind == vLong || t.kind == vDouble {
		return 2
	}
	return 1
}

func (t vtype) eq(o vtype) bool {
	return t.kind == o.kind && t.name == o.name && t.newPC == o.newPC
}

// vtypeOf maps a JVM type to its verification type.
func vtypeOf(t Type) vtype {
	switch t.Sort() {
	case SortBoolean, SortChar, SortByte, SortShort, SortInt:
		return vtInt
	case SortFloat:
		return vtFloat
	case SortLong:
		return vtLong
	case SortDouble:
		return vtDouble
	case SortObject:
		return vtObject(t.Internal())
	case SortArray:
		return vtObject(t.Descriptor())
	}
	return vtTop
}

// frameState is the dataflow state at one point: locals are per slot (the
// second slot of a long/double holds top), the stack is per value.
type frameState struct {
	locals []vtype
	stack  []vtype
}

func (s *frameState) clone() frameState {
	return frameState{
		locals: append([]vtype(nil), s.locals...),
		stack:  append([]vtype(nil), s.stack...),
	}
}

func (s *frameState) push(t vtype) { s.stack = append(s.stack, t) }

func (s *frameState) pop() (vtype, error) {
	if len(s.stack) == 0 {
		return vtype{}, fmt.Errorf("%w: operand stack underflow", ErrUnverifiable)
	}
	t := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return t, nil
}

func (s *frameState) popN(n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.pop(); err != nil {
			return err
		}
	}
	return nil
}

func (s *frameState) setLocal(i int, t vtype) {
	need := i + t.size()
	for len(s.locals) < need {
		s.locals = append(s.locals, vtTop)
	}
	// Storing into the middle of a wide pair invalidates its low half.
	if i > 0 {
		if prev := s.locals[i-1]; prev.kind == vLong || prev.kind == vDouble {
			s.locals[i-1] = vtTop
		}
	}
	s.locals[i] = t
	if t.size() == 2 {
		s.locals[i+1] = vtTop
	}
}

func (s *frameState) local(i int) vtype {
	if i < len(s.locals) {
		return s.locals[i]
	}
	return vtTop
}

// slotDepth returns the operand stack depth in slots.
func (s *frameState) slotDepth() int {
	n := 0
	for _, t := range s.stack {
		n += t.size()
	}
	return n
}

// stackMapFrame is one computed frame, keyed by bytecode offset.
type stackMapFrame struct {
	pc     int
	locals []vtype // collapsed: wide types occupy one entry
	stack  []vtype
}

type frameResult struct {
	maxStack  int
	maxLocals int
	frames    []stackMapFrame
	reachable []bool // per layout index
}

// flow runs the worklist dataflow over laid-out code.
type flow struct {
	cls      *ClassNode
	method   *MethodNode
	lay      *codeLayout
	resolver SuperclassResolver

	// leaders maps layout index → entry state (present once discovered).
	states   map[int]*frameState
	worklist []int
	needMap  map[int]bool // layout indexes that need an emitted frame
	reached  []bool

	maxStack  int
	maxLocals int

	// handlers by covered layout range, precomputed.
	handlers []flowHandler
}

type flowHandler struct {
	startIdx, endIdx, handlerIdx int
	catchType                    string
}

func computeFrames(cls *ClassNode, m *MethodNode, lay *codeLayout, resolver SuperclassResolver) (*frameResult, error) {
	if resolver == nil {
		resolver = ObjectJoin{}
	}
	f := &flow{
		cls:      cls,
		method:   m,
		lay:      lay,
		resolver: resolver,
		states:   make(map[int]*frameState),
		needMap:  make(map[int]bool),
		reached:  make([]bool, len(lay.insns)),
	}
	if err := f.prepare(); err != nil {
		return nil, err
	}
	if err := f.run(); err != nil {
		return nil, err
	}
	return f.result()
}

// entryState builds the method-entry frame from the descriptor.
func (f *flow) entryState() (frameState, error) {
	mt, err := ParseMethodDescriptor(f.method.Desc)
	if err != nil {
		return frameState{}, err
	}
	st := frameState{}
	slot := 0
	if !f.method.IsStatic() {
		if f.method.Name == "<init>" {
			st.setLocal(0, vtype{kind: vUninitThis})
		} else {
			st.setLocal(0, vtObject(f.cls.Name))
		}
		slot = 1
	}
	for _, a := range mt.Args {
		st.setLocal(slot, vtypeOf(a))
		slot += a.Size()
	}
	return st, nil
}

func (f *flow) prepare() error {
	for _, h := range f.method.TryCatch {
		si, ok1 := f.lay.labelIndex[h.Start]
		ei, ok2 := f.lay.labelIndex[h.End]
		hi, ok3 := f.lay.labelIndex[h.Handler]
		if !ok1 || !ok2 || !ok3 {
			return fmt.Errorf("%w: try/catch references a label outside the method", ErrUnverifiable)
		}
		f.handlers = append(f.handlers, flowHandler{startIdx: si, endIdx: ei, handlerIdx: hi, catchType: h.Type})
	}
	entry, err := f.entryState()
	if err != nil {
		return err
	}
	f.maxLocals = len(entry.locals)
	f.merge(0, &entry, false)
	return nil
}

// merge joins a state into the block starting at layout index idx and
// queues it when the entry changed. asTarget marks indexes that need an
// emitted stack map frame.
func (f *flow) merge(idx int, st *frameState, asTarget bool) error {
	if asTarget {
		f.needMap[idx] = true
	}
	cur, ok := f.states[idx]
	if !ok {
		c := st.clone()
		f.states[idx] = &c
		f.worklist = append(f.worklist, idx)
		return nil
	}
	if len(cur.stack) != len(st.stack) {
		return fmt.Errorf("%w: inconsistent stack height at offset %d (%d vs %d)",
			ErrUnverifiable, f.lay.pcs[idx], len(cur.stack), len(st.stack))
	}
	changed := false
	for i := range cur.stack {
		merged, err := f.join(cur.stack[i], st.stack[i], false)
		if err != nil {
			return err
		}
		if !merged.eq(cur.stack[i]) {
			cur.stack[i] = merged
			changed = true
		}
	}
	// Locals arrays may differ in length; missing slots are top.
	n := len(cur.locals)
	if len(st.locals) > n {
		n = len(st.locals)
	}
	for i := 0; i < n; i++ {
		a, b := vtTop, vtTop
		if i < len(cur.locals) {
			a = cur.locals[i]
		}
		if i < len(st.locals) {
			b = st.locals[i]
		}
		merged, _ := f.join(a, b, true)
		if i < len(cur.locals) {
			if !merged.eq(cur.locals[i]) {
				cur.locals[i] = merged
				changed = true
			}
		} else if merged.kind != vTop {
			for len(cur.locals) < i {
				cur.locals = append(cur.locals, vtTop)
			}
			cur.locals = append(cur.locals, merged)
			changed = true
		}
	}
	if changed {
		f.worklist = append(f.worklist, idx)
	}
	return nil
}

// join merges two verification types. In locals a conflict degrades to
// top; on the stack it is an error unless a reference join exists.
func (f *flow) join(a, b vtype, inLocals bool) (vtype, error) {
	switch {
	case a.eq(b):
		return a, nil
	case a.kind == vNull && (b.kind == vObject || b.kind == vNull):
		return b, nil
	case b.kind == vNull && a.kind == vObject:
		return a, nil
	case a.kind == vObject && b.kind == vObject:
		return vtObject(f.commonSuper(a.name, b.name)), nil
	}
	if inLocals {
		return vtTop, nil
	}
	return vtype{}, fmt.Errorf("%w: incompatible stack types", ErrUnverifiable)
}

func (f *flow) commonSuper(a, b string) string {
	if a == b {
		return a
	}
	// Array descriptors join at Object unless identical; asking a loader
	// about them is not meaningful here.
	if a == "" || b == "" || a[0] == '[' || b[0] == '[' {
		return "java/lang/Object"
	}
	return f.resolver.CommonSuperclass(a, b)
}

func (f *flow) run() error {
	for len(f.worklist) > 0 {
		idx := f.worklist[len(f.worklist)-1]
		f.worklist = f.worklist[:len(f.worklist)-1]
		st := f.states[idx].clone()
		if err := f.runBlock(idx, &st); err != nil {
			return err
		}
	}
	return nil
}

func (f *flow) runBlock(idx int, st *frameState) error {
	for i := idx; i < len(f.lay.insns); i++ {
		f.reached[i] = true
		f.noteDepth(st)

		// Any instruction inside a protected range feeds the handler's
		// locals; the handler starts with just the thrown value.
		for _, h := range f.handlers {
			if i >= h.startIdx && i < h.endIdx {
				hs := frameState{locals: append([]vtype(nil), st.locals...)}
				ct := h.catchType
				if ct == "" {
					ct = "java/lang/Throwable"
				}
				hs.push(vtObject(ct))
				if err := f.merge(h.handlerIdx, &hs, true); err != nil {
					return err
				}
			}
		}

		in := f.lay.insns[i]
		terminal, err := f.step(st, in, i)
		if err != nil {
			return fmt.Errorf("%s%s at offset %d (%s): %w",
				f.method.Name, f.method.Desc, f.lay.pcs[i], insnMnemonic(in), err)
		}
		f.noteDepth(st)
		if terminal {
			return nil
		}
		// Falling into a known block entry merges and stops this walk.
		if i+1 < len(f.lay.insns) {
			if _, isLeader := f.states[i+1]; isLeader {
				return f.merge(i+1, st, false)
			}
		}
	}
	return nil
}

func (f *flow) noteDepth(st *frameState) {
	if d := st.slotDepth(); d > f.maxStack {
		f.maxStack = d
	}
	if n := len(st.locals); n > f.maxLocals {
		f.maxLocals = n
	}
}

func insnMnemonic(in Insn) string {
	if op := in.Op(); op >= 0 {
		return OpcodeName(op)
	}
	return "pseudo"
}

// branchTo merges the current state into a branch target.
func (f *flow) branchTo(lab *Label, st *frameState) error {
	idx, ok := f.lay.labelIndex[lab]
	if !ok || idx >= len(f.lay.insns) {
		return fmt.Errorf("%w: branch to unknown label", ErrUnverifiable)
	}
	return f.merge(idx, st, true)
}

// step applies one instruction to the state. It reports whether control
// does not fall through.
func (f *flow) step(st *frameState, in Insn, idx int) (bool, error) {
	switch n := in.(type) {
	case *VarInsn:
		return f.stepVar(st, n)

	case *IincInsn:
		st.setLocal(n.Index, vtInt)
		return false, nil

	case *IntInsn:
		if n.Opcode == OpNewarray {
			if _, err := st.pop(); err != nil {
				return false, err
			}
			st.push(vtObject(arrayDescFor(n.Value)))
		} else {
			st.push(vtInt)
		}
		return false, nil

	case *LdcInsn:
		switch v := n.Value.(type) {
		case int32:
			st.push(vtInt)
		case int64:
			st.push(vtLong)
		case float32:
			st.push(vtFloat)
		case float64:
			st.push(vtDouble)
		case string:
			st.push(vtObject("java/lang/String"))
		case Type:
			st.push(vtObject("java/lang/Class"))
		case Handle:
			st.push(vtObject("java/lang/invoke/MethodHandle"))
		case MethodTypeRef:
			st.push(vtObject("java/lang/invoke/MethodType"))
		default:
			return false, fmt.Errorf("%w: unsupported ldc constant %T", ErrUnverifiable, v)
		}
		return false, nil

	case *TypeInsn:
		return f.stepType(st, n, idx)

	case *FieldInsn:
		return f.stepField(st, n)

	case *MethodInsn:
		return f.stepInvoke(st, n.Opcode, n.Owner, n.Desc, n.Name)

	case *InvokeDynamicInsn:
		return f.stepInvoke(st, OpInvokedynamic, "", n.Desc, n.Name)

	case *JumpInsn:
		if n.Opcode == OpJsr {
			return false, ErrJsrRet
		}
		if n.Opcode != OpGoto {
			if err := st.popN(jumpPops(n.Opcode)); err != nil {
				return false, err
			}
		}
		if err := f.branchTo(n.Target, st); err != nil {
			return false, err
		}
		return n.Opcode == OpGoto, nil

	case *TableSwitchInsn:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		if err := f.branchTo(n.Default, st); err != nil {
			return false, err
		}
		for _, t := range n.Targets {
			if err := f.branchTo(t, st); err != nil {
				return false, err
			}
		}
		return true, nil

	case *LookupSwitchInsn:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		if err := f.branchTo(n.Default, st); err != nil {
			return false, err
		}
		for _, t := range n.Targets {
			if err := f.branchTo(t, st); err != nil {
				return false, err
			}
		}
		return true, nil

	case *MultiANewArrayInsn:
		if err := st.popN(n.Dims); err != nil {
			return false, err
		}
		st.push(vtObject(n.Desc))
		return false, nil

	case *SimpleInsn:
		return f.stepSimple(st, n.Opcode)
	}
	return false, fmt.Errorf("%w: unsupported instruction %T", ErrUnverifiable, in)
}

func arrayDescFor(code int) string {
	switch code {
	case ArrayBoolean:
		return "[Z"
	case ArrayChar:
		return "[C"
	case ArrayFloat:
		return "[F"
	case ArrayDouble:
		return "[D"
	case ArrayByte:
		return "[B"
	case ArrayShort:
		return "[S"
	case ArrayInt:
		return "[I"
	case ArrayLong:
		return "[J"
	}
	return "[Ljava/lang/Object;"
}

func jumpPops(op int) int {
	switch op {
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne:
		return 2
	default:
		return 1
	}
}

func (f *flow) stepVar(st *frameState, n *VarInsn) (bool, error) {
	switch n.Opcode {
	case OpIload:
		st.push(vtInt)
	case OpLload:
		st.push(vtLong)
	case OpFload:
		st.push(vtFloat)
	case OpDload:
		st.push(vtDouble)
	case OpAload:
		t := st.local(n.Index)
		if t.kind != vObject && t.kind != vNull && t.kind != vUninit && t.kind != vUninitThis {
			return false, fmt.Errorf("%w: aload of non-reference local %d", ErrUnverifiable, n.Index)
		}
		st.push(t)
	case OpIstore, OpFstore, OpAstore, OpLstore, OpDstore:
		t, err := st.pop()
		if err != nil {
			return false, err
		}
		st.setLocal(n.Index, t)
	case OpRet:
		return false, ErrJsrRet
	default:
		return false, fmt.Errorf("%w: bad var opcode %s", ErrUnverifiable, OpcodeName(n.Opcode))
	}
	if need := n.Index + varSlotSize(n.Opcode); need > f.maxLocals {
		f.maxLocals = need
	}
	return false, nil
}

func varSlotSize(op int) int {
	switch op {
	case OpLload, OpDload, OpLstore, OpDstore:
		return 2
	}
	return 1
}

func (f *flow) stepType(st *frameState, n *TypeInsn, idx int) (bool, error) {
	switch n.Opcode {
	case OpNew:
		st.push(vtype{kind: vUninit, newPC: f.lay.pcs[idx]})
	case OpAnewarray:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		if n.Type != "" && n.Type[0] == '[' {
			st.push(vtObject("[" + n.Type))
		} else {
			st.push(vtObject("[L" + n.Type + ";"))
		}
	case OpCheckcast:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		st.push(vtObject(n.Type))
	case OpInstanceof:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		st.push(vtInt)
	}
	return false, nil
}

func (f *flow) stepField(st *frameState, n *FieldInsn) (bool, error) {
	ft, err := TypeFromDescriptor(n.Desc)
	if err != nil {
		return false, err
	}
	switch n.Opcode {
	case OpGetstatic:
		st.push(vtypeOf(ft))
	case OpPutstatic:
		if _, err := st.pop(); err != nil {
			return false, err
		}
	case OpGetfield:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		st.push(vtypeOf(ft))
	case OpPutfield:
		if err := st.popN(2); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (f *flow) stepInvoke(st *frameState, op int, owner, desc, name string) (bool, error) {
	mt, err := ParseMethodDescriptor(desc)
	if err != nil {
		return false, err
	}
	if err := st.popN(len(mt.Args)); err != nil {
		return false, err
	}
	if op != OpInvokestatic && op != OpInvokedynamic {
		recv, err := st.pop()
		if err != nil {
			return false, err
		}
		if name == "<init>" && op == OpInvokespecial {
			f.initialize(st, recv, owner)
		}
	}
	if mt.Ret.Sort() != SortVoid {
		st.push(vtypeOf(mt.Ret))
	}
	return false, nil
}

// initialize rewrites an uninitialized value to its constructed type in
// every stack and local slot after an <init> call.
func (f *flow) initialize(st *frameState, recv vtype, owner string) {
	if recv.kind != vUninit && recv.kind != vUninitThis {
		return
	}
	var init vtype
	if recv.kind == vUninitThis {
		init = vtObject(f.cls.Name)
	} else {
		init = vtObject(owner)
	}
	for i, t := range st.stack {
		if t.eq(recv) {
			st.stack[i] = init
		}
	}
	for i, t := range st.locals {
		if t.eq(recv) {
			st.locals[i] = init
		}
	}
}

func (f *flow) stepSimple(st *frameState, op int) (bool, error) {
	switch op {
	case OpNop:
		return false, nil
	case OpAconstNull:
		st.push(vtNull)
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		st.push(vtInt)
	case OpLconst0, OpLconst1:
		st.push(vtLong)
	case OpFconst0, OpFconst1, OpFconst2:
		st.push(vtFloat)
	case OpDconst0, OpDconst1:
		st.push(vtDouble)

	case OpIaload, OpBaload, OpCaload, OpSaload:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtInt)
	case OpLaload:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtLong)
	case OpFaload:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtFloat)
	case OpDaload:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtDouble)
	case OpAaload:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		arr, err := st.pop()
		if err != nil {
			return false, err
		}
		st.push(arrayElem(arr))

	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		if err := st.popN(3); err != nil {
			return false, err
		}

	case OpPop:
		if _, err := st.pop(); err != nil {
			return false, err
		}
	case OpPop2:
		t, err := st.pop()
		if err != nil {
			return false, err
		}
		if t.size() == 1 {
			if _, err := st.pop(); err != nil {
				return false, err
			}
		}
	case OpDup:
		t, err := st.pop()
		if err != nil {
			return false, err
		}
		st.push(t)
		st.push(t)
	case OpDupX1:
		a, err := st.pop()
		if err != nil {
			return false, err
		}
		b, err := st.pop()
		if err != nil {
			return false, err
		}
		st.push(a)
		st.push(b)
		st.push(a)
	case OpDupX2:
		a, _ := st.pop()
		b, err := st.pop()
		if err != nil {
			return false, err
		}
		if b.size() == 2 {
			st.push(a)
			st.push(b)
			st.push(a)
		} else {
			c, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(a)
			st.push(c)
			st.push(b)
			st.push(a)
		}
	case OpDup2:
		a, err := st.pop()
		if err != nil {
			return false, err
		}
		if a.size() == 2 {
			st.push(a)
			st.push(a)
		} else {
			b, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(b)
			st.push(a)
			st.push(b)
			st.push(a)
		}
	case OpDup2X1:
		a, _ := st.pop()
		b, err := st.pop()
		if err != nil {
			return false, err
		}
		if a.size() == 2 {
			st.push(a)
			st.push(b)
			st.push(a)
		} else {
			c, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(b)
			st.push(a)
			st.push(c)
			st.push(b)
			st.push(a)
		}
	case OpDup2X2:
		a, _ := st.pop()
		b, err := st.pop()
		if err != nil {
			return false, err
		}
		if a.size() == 2 && b.size() == 2 {
			st.push(a)
			st.push(b)
			st.push(a)
		} else if a.size() == 2 {
			c, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(a)
			st.push(c)
			st.push(b)
			st.push(a)
		} else if b.size() == 2 {
			// unusual form: two category-1 over category-2
			c, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(b)
			st.push(a)
			st.push(c)
			st.push(b)
			st.push(a)
		} else {
			c, _ := st.pop()
			d, err := st.pop()
			if err != nil {
				return false, err
			}
			st.push(b)
			st.push(a)
			st.push(d)
			st.push(c)
			st.push(b)
			st.push(a)
		}
	case OpSwap:
		a, _ := st.pop()
		b, err := st.pop()
		if err != nil {
			return false, err
		}
		st.push(a)
		st.push(b)

	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIshl, OpIshr, OpIushr, OpIand, OpIor, OpIxor:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtInt)
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtLong)
	case OpLshl, OpLshr, OpLushr:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtLong)
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtFloat)
	case OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtDouble)
	case OpIneg:
		st.replaceTop(vtInt)
	case OpLneg:
		st.replaceTop(vtLong)
	case OpFneg:
		st.replaceTop(vtFloat)
	case OpDneg:
		st.replaceTop(vtDouble)

	case OpI2l, OpF2l, OpD2l:
		st.replaceTop(vtLong)
	case OpI2f, OpL2f, OpD2f:
		st.replaceTop(vtFloat)
	case OpI2d, OpL2d, OpF2d:
		st.replaceTop(vtDouble)
	case OpL2i, OpF2i, OpD2i, OpI2b, OpI2c, OpI2s:
		st.replaceTop(vtInt)

	case OpLcmp, OpDcmpl, OpDcmpg:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtInt)
	case OpFcmpl, OpFcmpg:
		if err := st.popN(2); err != nil {
			return false, err
		}
		st.push(vtInt)

	case OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		return true, nil
	case OpReturn:
		return true, nil
	case OpAthrow:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		return true, nil

	case OpArraylength:
		if _, err := st.pop(); err != nil {
			return false, err
		}
		st.push(vtInt)
	case OpMonitorenter, OpMonitorexit:
		if _, err := st.pop(); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("%w: unhandled opcode %s", ErrUnverifiable, OpcodeName(op))
	}
	return false, nil
}

func (s *frameState) replaceTop(t vtype) {
	if len(s.stack) > 0 {
		s.stack[len(s.stack)-1] = t
	}
}

func arrayElem(arr vtype) vtype {
	if arr.kind == vNull {
		return vtNull
	}
	if arr.kind == vObject && len(arr.name) > 1 && arr.name[0] == '[' {
		elem := arr.name[1:]
		if elem[0] == 'L' {
			return vtObject(elem[1 : len(elem)-1])
		}
		if elem[0] == '[' {
			return vtObject(elem)
		}
	}
	return vtObject("java/lang/Object")
}

func (f *flow) result() (*frameResult, error) {
	res := &frameResult{
		maxStack:  f.maxStack,
		maxLocals: f.maxLocals,
		reachable: f.reached,
	}
	var idxs []int
	for idx := range f.needMap {
		if f.reached[idx] {
			idxs = append(idxs, idx)
		}
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		st := f.states[idx]
		res.frames = append(res.frames, stackMapFrame{
			pc:     f.lay.pcs[idx],
			locals: collapseLocals(st.locals),
			stack:  append([]vtype(nil), st.stack...),
		})
	}
	return res, nil
}

// collapseLocals converts per-slot locals to frame entries: the top half
// of a wide type is implicit, and trailing tops are trimmed.
func collapseLocals(locals []vtype) []vtype {
	end := len(locals)
	for end > 0 && locals[end-1].kind == vTop {
		// Keep a trailing top that is the high half of a wide type.
		if end >= 2 && (locals[end-2].kind == vLong || locals[end-2].kind == vDouble) {
			break
		}
		end--
	}
	out := make([]vtype, 0, end)
	for i := 0; i < end; i++ {
		t := locals[i]
		out = append(out, t)
		if t.kind == vLong || t.kind == vDouble {
			i++ // implicit top
		}
	}
	return out
}
