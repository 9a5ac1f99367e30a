package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Constant pool builder
// ---------------------------------------------------------------------------

var (
	ErrBranchRange = errors.New("conditional branch offset exceeds 16 bits")
	ErrPoolSize    = errors.New("constant pool exceeds 65535 entries")
	ErrCodeSize    = errors.New("method code exceeds 65535 bytes")
)

// poolBuilder interns constants and serializes pool entries as they are
// first seen.
type poolBuilder struct {
	buf   bytes.Buffer
	next  int // index of the next entry (starts at 1)
	cache map[string]int

	bsm      []byte // serialized bootstrap_methods entries
	bsmCount int
	bsmCache map[string]int
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{next: 1, cache: make(map[string]int), bsmCache: make(map[string]int)}
}

func (p *poolBuilder) count() int { return p.next }

func (p *poolBuilder) intern(key string, wide bool, emit func(w *bytes.Buffer)) int {
	if idx, ok := p.cache[key]; ok {
		return idx
	}
	idx := p.next
	p.cache[key] = idx
	emit(&p.buf)
	if wide {
		p.next += 2
	} else {
		p.next++
	}
	return idx
}

func u16(w *bytes.Buffer, v int)    { w.WriteByte(byte(v >> 8)); w.WriteByte(byte(v)) }
func u32(w *bytes.Buffer, v uint32) { binary.Write(w, binary.BigEndian, v) }

func (p *poolBuilder) utf8(s string) int {
	return p.intern("u"+s, false, func(w *bytes.Buffer) {
		w.WriteByte(tagUtf8)
		u16(w, len(s))
		w.WriteString(s)
	})
}

func (p *poolBuilder) class(name string) int {
	nameIdx := p.utf8(name)
	return p.intern("c"+name, false, func(w *bytes.Buffer) {
		w.WriteByte(tagClass)
		u16(w, nameIdx)
	})
}

func (p *poolBuilder) str(s string) int {
	idx := p.utf8(s)
	return p.intern("s"+s, false, func(w *bytes.Buffer) {
		w.WriteByte(tagString)
		u16(w, idx)
	})
}

func (p *poolBuilder) integer(v int32) int {
	return p.intern(fmt.Sprintf("i%d", v), false, func(w *bytes.Buffer) {
		w.WriteByte(tagInteger)
		u32(w, uint32(v))
	})
}

func (p *poolBuilder) float(v float32) int {
	bits := math.Float32bits(v)
	return p.intern(fmt.Sprintf("f%08x", bits), false, func(w *bytes.Buffer) {
		w.WriteByte(tagFloat)
		u32(w, bits)
	})
}

func (p *poolBuilder) long(v int64) int {
	return p.intern(fmt.Sprintf("l%d", v), true, func(w *bytes.Buffer) {
		w.WriteByte(tagLong)
		u32(w, uint32(uint64(v)>>32))
		u32(w, uint32(uint64(v)))
	})
}

func (p *poolBuilder) double(v float64) int {
	bits := math.Float64bits(v)
	return p.intern(fmt.Sprintf("d%016x", bits), true, func(w *bytes.Buffer) {
		w.WriteByte(tagDouble)
		u32(w, uint32(bits>>32))
		u32(w, uint32(bits))
	})
}

func (p *poolBuilder) nameAndType(name, desc string) int {
	n := p.utf8(name)
	d := p.utf8(desc)
	return p.intern("n"+name+"\x00"+desc, false, func(w *bytes.Buffer) {
		w.WriteByte(tagNameAndType)
		u16(w, n)
		u16(w, d)
	})
}

func (p *poolBuilder) fieldref(owner, name, desc string) int {
	c := p.class(owner)
	nt := p.nameAndType(name, desc)
	return p.intern("F"+owner+"\x00"+name+"\x00"+desc, false, func(w *bytes.Buffer) {
		w.WriteByte(tagFieldref)
		u16(w, c)
		u16(w, nt)
	})
}

func (p *poolBuilder) methodref(owner, name, desc string, itf bool) int {
	c := p.class(owner)
	nt := p.nameAndType(name, desc)
	tag := byte(tagMethodref)
	key := "M"
	if itf {
		tag = tagInterfaceMethodref
		key = "I"
	}
	return p.intern(key+owner+"\x00"+name+"\x00"+desc, false, func(w *bytes.Buffer) {
		w.WriteByte(tag)
		u16(w, c)
		u16(w, nt)
	})
}

func (p *poolBuilder) methodHandle(h Handle) int {
	var ref int
	if h.Kind <= 4 { // field handles
		ref = p.fieldref(h.Owner, h.Name, h.Desc)
	} else {
		ref = p.methodref(h.Owner, h.Name, h.Desc, h.Itf)
	}
	key := fmt.Sprintf("h%d\x00%d", h.Kind, ref)
	return p.intern(key, false, func(w *bytes.Buffer) {
		w.WriteByte(tagMethodHandle)
		w.WriteByte(byte(h.Kind))
		u16(w, ref)
	})
}

func (p *poolBuilder) methodType(desc string) int {
	d := p.utf8(desc)
	return p.intern("t"+desc, false, func(w *bytes.Buffer) {
		w.WriteByte(tagMethodType)
		u16(w, d)
	})
}

// constant interns any loadable constant and returns its index.
func (p *poolBuilder) constant(v any) (int, error) {
	switch c := v.(type) {
	case int32:
		return p.integer(c), nil
	case int:
		return p.integer(int32(c)), nil
	case int64:
		return p.long(c), nil
	case float32:
		return p.float(c), nil
	case float64:
		return p.double(c), nil
	case string:
		return p.str(c), nil
	case Type:
		return p.class(c.Internal()), nil
	case Handle:
		return p.methodHandle(c), nil
	case MethodTypeRef:
		return p.methodType(c.Desc), nil
	}
	return 0, fmt.Errorf("unsupported constant %T", v)
}

// invokeDynamic interns the bootstrap entry and the InvokeDynamic constant.
func (p *poolBuilder) invokeDynamic(in *InvokeDynamicInsn) (int, error) {
	var entry bytes.Buffer
	u16(&entry, p.methodHandle(in.BSM))
	u16(&entry, len(in.BSMArgs))
	for _, a := range in.BSMArgs {
		idx, err := p.constant(a)
		if err != nil {
			return 0, err
		}
		u16(&entry, idx)
	}
	key := entry.String()
	bsmIdx, ok := p.bsmCache[key]
	if !ok {
		bsmIdx = p.bsmCount
		p.bsmCache[key] = bsmIdx
		p.bsm = append(p.bsm, entry.Bytes()...)
		p.bsmCount++
	}
	nt := p.nameAndType(in.Name, in.Desc)
	return p.intern(fmt.Sprintf("y%d\x00%d", bsmIdx, nt), false, func(w *bytes.Buffer) {
		w.WriteByte(tagInvokeDynamic)
		u16(w, bsmIdx)
		u16(w, nt)
	}), nil
}

// ---------------------------------------------------------------------------
// Code layout
// ---------------------------------------------------------------------------

// codeLayout fixes a bytecode offset for every instruction and label.
type codeLayout struct {
	insns      []Insn
	pcs        []int
	end        int
	labelPC    map[*Label]int
	labelIndex map[*Label]int // label → index of the following instruction
	wide       map[*JumpInsn]bool
	lines      []*LineInsn
}

// layoutCode assigns offsets, widening unconditional branches that do not
// fit in 16 bits. Constants are interned during sizing because ldc width
// depends on the pool index.
func layoutCode(list *InsnList, pb *poolBuilder) (*codeLayout, error) {
	lay := &codeLayout{
		labelPC:    make(map[*Label]int),
		labelIndex: make(map[*Label]int),
		wide:       make(map[*JumpInsn]bool),
	}
	for _, in := range list.All() {
		switch n := in.(type) {
		case *Label, *LineInsn:
			if line, ok := n.(*LineInsn); ok {
				lay.lines = append(lay.lines, line)
			}
		default:
			lay.insns = append(lay.insns, in)
		}
	}
	lay.pcs = make([]int, len(lay.insns))

	for pass := 0; ; pass++ {
		if pass > len(lay.insns)+2 {
			return nil, fmt.Errorf("code layout did not converge")
		}
		pc := 0
		idx := 0
		for _, in := range list.All() {
			switch n := in.(type) {
			case *Label:
				lay.labelPC[n] = pc
				lay.labelIndex[n] = idx
			case *LineInsn:
			default:
				lay.pcs[idx] = pc
				size, err := insnSize(in, pc, lay, pb)
				if err != nil {
					return nil, err
				}
				pc += size
				idx++
			}
		}
		lay.end = pc

		// Widen any goto whose offset no longer fits.
		grew := false
		for i, in := range lay.insns {
			j, ok := in.(*JumpInsn)
			if !ok || lay.wide[j] {
				continue
			}
			off := lay.labelPC[j.Target] - lay.pcs[i]
			if off < math.MinInt16 || off > math.MaxInt16 {
				if j.Opcode != OpGoto {
					return nil, fmt.Errorf("%w: %s at %d", ErrBranchRange, OpcodeName(j.Opcode), lay.pcs[i])
				}
				lay.wide[j] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	if lay.end > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCodeSize, lay.end)
	}
	return lay, nil
}

func insnSize(in Insn, pc int, lay *codeLayout, pb *poolBuilder) (int, error) {
	switch n := in.(type) {
	case *SimpleInsn:
		return 1, nil
	case *IntInsn:
		if n.Opcode == OpSipush {
			return 3, nil
		}
		return 2, nil
	case *VarInsn:
		if n.Index < 0 {
			return 0, fmt.Errorf("negative local index %d", n.Index)
		}
		if n.Index > math.MaxUint16 {
			return 0, fmt.Errorf("local index %d exceeds 65535", n.Index)
		}
		if n.Index <= 3 && n.Opcode != OpRet {
			return 1, nil
		}
		if n.Index <= math.MaxUint8 {
			return 2, nil
		}
		return 4, nil // wide
	case *LdcInsn:
		switch v := n.Value.(type) {
		case int64, float64:
			if _, err := pb.constant(v); err != nil {
				return 0, err
			}
			return 3, nil // ldc2_w
		default:
			idx, err := pb.constant(n.Value)
			if err != nil {
				return 0, err
			}
			if idx <= math.MaxUint8 {
				return 2, nil
			}
			return 3, nil
		}
	case *IincInsn:
		if n.Index <= math.MaxUint8 && n.Delta >= math.MinInt8 && n.Delta <= math.MaxInt8 {
			return 3, nil
		}
		return 6, nil // wide
	case *JumpInsn:
		if lay.wide[n] {
			return 5, nil
		}
		return 3, nil
	case *TableSwitchInsn:
		pad := (4 - (pc+1)%4) % 4
		return 1 + pad + 12 + 4*len(n.Targets), nil
	case *LookupSwitchInsn:
		pad := (4 - (pc+1)%4) % 4
		return 1 + pad + 8 + 8*len(n.Keys), nil
	case *FieldInsn:
		pb.fieldref(n.Owner, n.Name, n.Desc)
		return 3, nil
	case *MethodInsn:
		pb.methodref(n.Owner, n.Name, n.Desc, n.Itf || n.Opcode == OpInvokeinterface)
		if n.Opcode == OpInvokeinterface {
			return 5, nil
		}
		return 3, nil
	case *InvokeDynamicInsn:
		if _, err := pb.invokeDynamic(n); err != nil {
			return 0, err
		}
		return 5, nil
	case *TypeInsn:
		pb.class(n.Type)
		return 3, nil
	case *MultiANewArrayInsn:
		pb.class(n.Desc)
		return 4, nil
	}
	return 0, fmt.Errorf("unsupported instruction %T", in)
}

// ---------------------------------------------------------------------------
// Code emission
// ---------------------------------------------------------------------------

func emitCode(m *MethodNode, lay *codeLayout, fr *frameResult, pb *poolBuilder) ([]byte, error) {
	code := make([]byte, lay.end)
	w := code[:0]

	put8 := func(v int) { w = append(w, byte(v)) }
	put16 := func(v int) { w = append(w, byte(v>>8), byte(v)) }
	put32 := func(v int) { w = append(w, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }

	for i, in := range lay.insns {
		pc := lay.pcs[i]
		if len(w) != pc {
			return nil, fmt.Errorf("layout drift at offset %d", pc)
		}
		if !fr.reachable[i] {
			// Unreachable code has no computable frame; the whole run is
			// replaced by nops with a single trailing athrow, and
			// stackMapEntries adds a synthetic [throwable] frame at the
			// run's first offset.
			size, _ := insnSize(in, pc, lay, pb)
			lastOfRun := i+1 >= len(lay.insns) || fr.reachable[i+1]
			for j := 0; j < size; j++ {
				put8(OpNop)
			}
			if lastOfRun {
				w[len(w)-1] = OpAthrow
			}
			continue
		}
		switch n := in.(type) {
		case *SimpleInsn:
			put8(n.Opcode)
		case *IntInsn:
			put8(n.Opcode)
			if n.Opcode == OpSipush {
				put16(n.Value)
			} else {
				put8(n.Value)
			}
		case *VarInsn:
			emitVar(&w, n)
		case *LdcInsn:
			switch v := n.Value.(type) {
			case int64:
				put8(OpLdc2W)
				idx, _ := pb.constant(v)
				put16(idx)
			case float64:
				put8(OpLdc2W)
				idx, _ := pb.constant(v)
				put16(idx)
			default:
				idx, err := pb.constant(n.Value)
				if err != nil {
					return nil, err
				}
				if idx <= math.MaxUint8 {
					put8(OpLdc)
					put8(idx)
				} else {
					put8(OpLdcW)
					put16(idx)
				}
			}
		case *IincInsn:
			if n.Index <= math.MaxUint8 && n.Delta >= math.MinInt8 && n.Delta <= math.MaxInt8 {
				put8(OpIinc)
				put8(n.Index)
				put8(n.Delta)
			} else {
				put8(OpWide)
				put8(OpIinc)
				put16(n.Index)
				put16(n.Delta)
			}
		case *JumpInsn:
			off := lay.labelPC[n.Target] - pc
			if lay.wide[n] {
				put8(OpGotoW)
				put32(off)
			} else {
				put8(n.Opcode)
				put16(off)
			}
		case *TableSwitchInsn:
			put8(OpTableswitch)
			for len(w)%4 != 0 {
				put8(0)
			}
			put32(lay.labelPC[n.Default] - pc)
			put32(n.Low)
			put32(n.High)
			for _, t := range n.Targets {
				put32(lay.labelPC[t] - pc)
			}
		case *LookupSwitchInsn:
			put8(OpLookupswitch)
			for len(w)%4 != 0 {
				put8(0)
			}
			put32(lay.labelPC[n.Default] - pc)
			put32(len(n.Keys))
			for k, key := range n.Keys {
				put32(key)
				put32(lay.labelPC[n.Targets[k]] - pc)
			}
		case *FieldInsn:
			put8(n.Opcode)
			put16(pb.fieldref(n.Owner, n.Name, n.Desc))
		case *MethodInsn:
			put8(n.Opcode)
			itf := n.Itf || n.Opcode == OpInvokeinterface
			put16(pb.methodref(n.Owner, n.Name, n.Desc, itf))
			if n.Opcode == OpInvokeinterface {
				mt, err := ParseMethodDescriptor(n.Desc)
				if err != nil {
					return nil, err
				}
				put8(mt.ArgSlots() + 1)
				put8(0)
			}
		case *InvokeDynamicInsn:
			idx, err := pb.invokeDynamic(n)
			if err != nil {
				return nil, err
			}
			put8(OpInvokedynamic)
			put16(idx)
			put16(0)
		case *TypeInsn:
			put8(n.Opcode)
			put16(pb.class(n.Type))
		case *MultiANewArrayInsn:
			put8(OpMultianewarray)
			put16(pb.class(n.Desc))
			put8(n.Dims)
		default:
			return nil, fmt.Errorf("unsupported instruction %T", in)
		}
	}
	if len(w) != lay.end {
		return nil, fmt.Errorf("layout drift at end of %s%s", m.Name, m.Desc)
	}
	return w, nil
}

func emitVar(w *[]byte, n *VarInsn) {
	put := func(b ...byte) { *w = append(*w, b...) }
	if n.Index <= 3 && n.Opcode != OpRet {
		switch n.Opcode {
		case OpIload, OpLload, OpFload, OpDload, OpAload:
			put(byte(OpIload0 + 4*(n.Opcode-OpIload) + n.Index))
			return
		case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
			put(byte(OpIstore0 + 4*(n.Opcode-OpIstore) + n.Index))
			return
		}
	}
	if n.Index <= math.MaxUint8 {
		put(byte(n.Opcode), byte(n.Index))
		return
	}
	put(OpWide, byte(n.Opcode), byte(n.Index>>8), byte(n.Index))
}

// ---------------------------------------------------------------------------
// Stack map serialization
// ---------------------------------------------------------------------------

// stackMapEntries renders computed frames, adding synthetic frames at the
// start of each unreachable run (emitted as nop…athrow).
func stackMapEntries(lay *codeLayout, fr *frameResult, pb *poolBuilder) []byte {
	frames := append([]stackMapFrame(nil), fr.frames...)
	for i := 0; i < len(fr.reachable); i++ {
		if !fr.reachable[i] && (i == 0 || fr.reachable[i-1]) {
			frames = append(frames, stackMapFrame{
				pc:    lay.pcs[i],
				stack: []vtype{vtObject("java/lang/Throwable")},
			})
		}
	}
	if len(frames) == 0 {
		return nil
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].pc < frames[j].pc })

	var buf bytes.Buffer
	u16(&buf, len(frames))
	prev := -1
	for _, f := range frames {
		buf.WriteByte(255) // full_frame
		u16(&buf, f.pc-prev-1)
		u16(&buf, len(f.locals))
		for _, t := range f.locals {
			writeVType(&buf, t, pb)
		}
		u16(&buf, len(f.stack))
		for _, t := range f.stack {
			writeVType(&buf, t, pb)
		}
		prev = f.pc
	}
	return buf.Bytes()
}

func writeVType(buf *bytes.Buffer, t vtype, pb *poolBuilder) {
	switch t.kind {
	case vTop:
		buf.WriteByte(0)
	case vInt:
		buf.WriteByte(1)
	case vFloat:
		buf.WriteByte(2)
	case vDouble:
		buf.WriteByte(3)
	case vLong:
		buf.WriteByte(4)
	case vNull:
		buf.WriteByte(5)
	case vUninitThis:
		buf.WriteByte(6)
	case vObject:
		buf.WriteByte(7)
		u16(buf, pb.class(t.name))
	case vUninit:
		buf.WriteByte(8)
		u16(buf, t.newPC)
	}
}

// ---------------------------------------------------------------------------
// Class writing
// ---------------------------------------------------------------------------

// Write serializes a ClassNode. max_stack, max_locals, and (for classfile
// version 50+) StackMapTable attributes are recomputed from scratch; the
// resolver answers common-superclass queries during frame merges and may
// be nil for the java/lang/Object join.
func Write(node *ClassNode, resolver SuperclassResolver) ([]byte, error) {
	pb := newPoolBuilder()

	thisIdx := pb.class(node.Name)
	superIdx := 0
	if node.SuperName != "" {
		superIdx = pb.class(node.SuperName)
	}
	var ifaceIdx []int
	for _, it := range node.Interfaces {
		ifaceIdx = append(ifaceIdx, pb.class(it))
	}

	var fieldsBuf bytes.Buffer
	for _, f := range node.Fields {
		if err := writeField(&fieldsBuf, f, pb); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	var methodsBuf bytes.Buffer
	for _, m := range node.Methods {
		if err := writeMethod(&methodsBuf, node, m, pb, resolver); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}

	// Class attributes, including the accumulated bootstrap methods.
	var attrs []RawAttribute
	if node.SourceFile != "" {
		var b bytes.Buffer
		u16(&b, pb.utf8(node.SourceFile))
		attrs = append(attrs, RawAttribute{Name: attrSourceFile, Data: b.Bytes()})
	}
	if len(node.VisibleAnnotations) > 0 {
		data, err := writeAnnotations(node.VisibleAnnotations, pb)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, RawAttribute{Name: attrRuntimeVisibleAnn, Data: data})
	}
	attrs = append(attrs, node.Attrs...)
	if pb.bsmCount > 0 {
		var b bytes.Buffer
		u16(&b, pb.bsmCount)
		b.Write(pb.bsm)
		attrs = append(attrs, RawAttribute{Name: attrBootstrapMethods, Data: b.Bytes()})
	}
	var attrBuf bytes.Buffer
	for _, a := range attrs {
		writeAttr(&attrBuf, a, pb)
	}

	if pb.count() > math.MaxUint16 {
		return nil, ErrPoolSize
	}

	var out bytes.Buffer
	u32(&out, Magic)
	u16(&out, node.MinorVersion)
	u16(&out, node.MajorVersion)
	u16(&out, pb.count())
	out.Write(pb.buf.Bytes())
	u16(&out, node.Access)
	u16(&out, thisIdx)
	u16(&out, superIdx)
	u16(&out, len(ifaceIdx))
	for _, i := range ifaceIdx {
		u16(&out, i)
	}
	u16(&out, len(node.Fields))
	out.Write(fieldsBuf.Bytes())
	u16(&out, len(node.Methods))
	out.Write(methodsBuf.Bytes())
	u16(&out, len(attrs))
	out.Write(attrBuf.Bytes())
	return out.Bytes(), nil
}

func writeAttr(w *bytes.Buffer, a RawAttribute, pb *poolBuilder) {
	u16(w, pb.utf8(a.Name))
	u32(w, uint32(len(a.Data)))
	w.Write(a.Data)
}

func writeField(w *bytes.Buffer, f *FieldNode, pb *poolBuilder) error {
	u16(w, f.Access)
	u16(w, pb.utf8(f.Name))
	u16(w, pb.utf8(f.Desc))

	var attrs []RawAttribute
	if f.ConstantValue != nil {
		idx, err := pb.constant(f.ConstantValue)
		if err != nil {
			return err
		}
		var b bytes.Buffer
		u16(&b, idx)
		attrs = append(attrs, RawAttribute{Name: attrConstantValue, Data: b.Bytes()})
	}
	if len(f.VisibleAnnotations) > 0 {
		data, err := writeAnnotations(f.VisibleAnnotations, pb)
		if err != nil {
			return err
		}
		attrs = append(attrs, RawAttribute{Name: attrRuntimeVisibleAnn, Data: data})
	}
	attrs = append(attrs, f.Attrs...)
	u16(w, len(attrs))
	for _, a := range attrs {
		writeAttr(w, a, pb)
	}
	return nil
}

func writeMethod(w *bytes.Buffer, cls *ClassNode, m *MethodNode, pb *poolBuilder, resolver SuperclassResolver) error {
	u16(w, m.Access)
	u16(w, pb.utf8(m.Name))
	u16(w, pb.utf8(m.Desc))

	var attrs []RawAttribute
	if m.Code != nil {
		data, err := writeCodeAttr(cls, m, pb, resolver)
		if err != nil {
			return err
		}
		attrs = append(attrs, RawAttribute{Name: attrCode, Data: data})
	}
	if len(m.Exceptions) > 0 {
		var b bytes.Buffer
		u16(&b, len(m.Exceptions))
		for _, ex := range m.Exceptions {
			u16(&b, pb.class(ex))
		}
		attrs = append(attrs, RawAttribute{Name: attrExceptions, Data: b.Bytes()})
	}
	if len(m.VisibleAnnotations) > 0 {
		data, err := writeAnnotations(m.VisibleAnnotations, pb)
		if err != nil {
			return err
		}
		attrs = append(attrs, RawAttribute{Name: attrRuntimeVisibleAnn, Data: data})
	}
	if len(m.Params) > 0 {
		var b bytes.Buffer
		b.WriteByte(byte(len(m.Params)))
		for _, prm := range m.Params {
			u16(&b, pb.utf8(prm.Name))
			u16(&b, prm.Access)
		}
		attrs = append(attrs, RawAttribute{Name: attrMethodParameters, Data: b.Bytes()})
	}
	u16(w, len(attrs))
	for _, a := range attrs {
		writeAttr(w, a, pb)
	}
	return nil
}

func writeCodeAttr(cls *ClassNode, m *MethodNode, pb *poolBuilder, resolver SuperclassResolver) ([]byte, error) {
	lay, err := layoutCode(m.Code, pb)
	if err != nil {
		return nil, err
	}
	fr, err := computeFrames(cls, m, lay, resolver)
	if err != nil {
		return nil, err
	}
	code, err := emitCode(m, lay, fr, pb)
	if err != nil {
		return nil, err
	}

	maxStack := fr.maxStack
	if m.MaxStack > maxStack {
		maxStack = m.MaxStack
	}
	maxLocals := fr.maxLocals
	if m.MaxLocals > maxLocals {
		maxLocals = m.MaxLocals
	}

	var b bytes.Buffer
	u16(&b, maxStack)
	u16(&b, maxLocals)
	u32(&b, uint32(len(code)))
	b.Write(code)

	u16(&b, len(m.TryCatch))
	for _, h := range m.TryCatch {
		start, ok1 := lay.labelPC[h.Start]
		end, ok2 := lay.labelPC[h.End]
		handler, ok3 := lay.labelPC[h.Handler]
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("try/catch references a label outside the method")
		}
		u16(&b, start)
		u16(&b, end)
		u16(&b, handler)
		if h.Type == "" {
			u16(&b, 0)
		} else {
			u16(&b, pb.class(h.Type))
		}
	}

	var codeAttrs []RawAttribute
	if len(lay.lines) > 0 {
		var lnb bytes.Buffer
		u16(&lnb, len(lay.lines))
		for _, ln := range lay.lines {
			u16(&lnb, lay.labelPC[ln.Start])
			u16(&lnb, ln.Line)
		}
		codeAttrs = append(codeAttrs, RawAttribute{Name: attrLineNumberTable, Data: lnb.Bytes()})
	}
	if len(m.LocalVars) > 0 {
		var lvb bytes.Buffer
		u16(&lvb, len(m.LocalVars))
		for _, v := range m.LocalVars {
			start, ok1 := lay.labelPC[v.Start]
			end, ok2 := lay.labelPC[v.End]
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("local variable %q references a label outside the method", v.Name)
			}
			u16(&lvb, start)
			u16(&lvb, end-start)
			u16(&lvb, pb.utf8(v.Name))
			u16(&lvb, pb.utf8(v.Desc))
			u16(&lvb, v.Index)
		}
		codeAttrs = append(codeAttrs, RawAttribute{Name: attrLocalVarTable, Data: lvb.Bytes()})
	}
	if cls.MajorVersion >= 50 {
		if sm := stackMapEntries(lay, fr, pb); sm != nil {
			codeAttrs = append(codeAttrs, RawAttribute{Name: attrStackMapTable, Data: sm})
		}
	}
	u16(&b, len(codeAttrs))
	for _, a := range codeAttrs {
		writeAttr(&b, a, pb)
	}
	return b.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Annotation writing
// ---------------------------------------------------------------------------

func writeAnnotations(anns []Annotation, pb *poolBuilder) ([]byte, error) {
	var b bytes.Buffer
	u16(&b, len(anns))
	for _, a := range anns {
		if err := writeAnnotation(&b, a, pb); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

func writeAnnotation(b *bytes.Buffer, a Annotation, pb *poolBuilder) error {
	u16(b, pb.utf8(a.Desc))
	u16(b, len(a.Values))
	for _, v := range a.Values {
		u16(b, pb.utf8(v.Name))
		if err := writeElementValue(b, v.Value, pb); err != nil {
			return err
		}
	}
	return nil
}

func writeElementValue(b *bytes.Buffer, v any, pb *poolBuilder) error {
	switch c := v.(type) {
	case bool:
		b.WriteByte('Z')
		n := int32(0)
		if c {
			n = 1
		}
		u16(b, pb.integer(n))
	case int:
		b.WriteByte('I')
		u16(b, pb.integer(int32(c)))
	case int32:
		b.WriteByte('I')
		u16(b, pb.integer(c))
	case int64:
		b.WriteByte('J')
		u16(b, pb.long(c))
	case float32:
		b.WriteByte('F')
		u16(b, pb.float(c))
	case float64:
		b.WriteByte('D')
		u16(b, pb.double(c))
	case string:
		b.WriteByte('s')
		u16(b, pb.utf8(c))
	case Type:
		b.WriteByte('c')
		u16(b, pb.utf8(c.Descriptor()))
	case EnumValue:
		b.WriteByte('e')
		u16(b, pb.utf8(c.TypeDesc))
		u16(b, pb.utf8(c.Name))
	case Annotation:
		b.WriteByte('@')
		return writeAnnotation(b, c, pb)
	case []any:
		b.WriteByte('[')
		u16(b, len(c))
		for _, e := range c {
			if err := writeElementValue(b, e, pb); err != nil {
				return err
			}
		}
	case []string:
		b.WriteByte('[')
		u16(b, len(c))
		for _, e := range c {
			b.WriteByte('s')
			u16(b, pb.utf8(e))
		}
	default:
		return fmt.Errorf("unsupported annotation value %T", v)
	}
	return nil
}
