package classfile

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Classfile parsing
// ---------------------------------------------------------------------------

// Parse decodes classfile bytes into a ClassNode. Method bodies are decoded
// into typed instruction lists with one Label per referenced offset.
// StackMapTable attributes are discarded; Write recomputes them.
func Parse(data []byte) (*ClassNode, error) {
	r := &reader{data: data}
	if r.u4() != Magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrBadMagic
	}

	node := &ClassNode{}
	node.MinorVersion = r.u2()
	node.MajorVersion = r.u2()

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}

	node.Access = r.u2()
	if node.Name, err = pool.className(r.u2()); err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}
	if node.SuperName, err = pool.optClassName(r.u2()); err != nil {
		return nil, fmt.Errorf("resolving super_class: %w", err)
	}

	ifaceCount := r.u2()
	for i := 0; i < ifaceCount; i++ {
		name, err := pool.className(r.u2())
		if err != nil {
			return nil, fmt.Errorf("resolving interface %d: %w", i, err)
		}
		node.Interfaces = append(node.Interfaces, name)
	}

	ps := &parseState{pool: pool}

	fieldCount := r.u2()
	for i := 0; i < fieldCount; i++ {
		f, err := parseField(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d: %w", i, err)
		}
		node.Fields = append(node.Fields, f)
	}

	methodCount := r.u2()
	for i := 0; i < methodCount; i++ {
		m, err := parseMethod(r, ps)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d: %w", i, err)
		}
		node.Methods = append(node.Methods, m)
	}

	if err := parseClassAttributes(r, node, ps); err != nil {
		return nil, err
	}
	if err := ps.resolveIndy(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return node, nil
}

// parseState carries cross-section parsing state: invokedynamic sites are
// seen before the class-level BootstrapMethods attribute and fixed up last.
type parseState struct {
	pool      *cpool
	indySites []pendingIndy
	bootstrap []bootstrapEntry
}

type pendingIndy struct {
	insn     *InvokeDynamicInsn
	bsmIndex int
}

type bootstrapEntry struct {
	ref  int
	args []int
}

func (ps *parseState) resolveIndy() error {
	for _, site := range ps.indySites {
		if site.bsmIndex < 0 || site.bsmIndex >= len(ps.bootstrap) {
			return fmt.Errorf("%w: bootstrap method index %d out of range", ErrBadPool, site.bsmIndex)
		}
		entry := ps.bootstrap[site.bsmIndex]
		h, err := ps.pool.handle(entry.ref)
		if err != nil {
			return fmt.Errorf("resolving bootstrap handle: %w", err)
		}
		site.insn.BSM = h
		for _, argIdx := range entry.args {
			v, err := ps.pool.constant(argIdx)
			if err != nil {
				return fmt.Errorf("resolving bootstrap argument: %w", err)
			}
			site.insn.BSMArgs = append(site.insn.BSMArgs, v)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func parseField(r *reader, pool *cpool) (*FieldNode, error) {
	f := &FieldNode{}
	f.Access = r.u2()
	var err error
	if f.Name, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}
	if f.Desc, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}
	attrCount := r.u2()
	for i := 0; i < attrCount; i++ {
		name, data, err := readAttribute(r, pool)
		if err != nil {
			return nil, err
		}
		switch name {
		case attrConstantValue:
			ar := &reader{data: data}
			f.ConstantValue, err = pool.constant(ar.u2())
			if err != nil {
				return nil, err
			}
		case attrRuntimeVisibleAnn:
			ar := &reader{data: data}
			f.VisibleAnnotations, err = readAnnotations(ar, pool)
			if err != nil {
				return nil, err
			}
		default:
			f.Attrs = append(f.Attrs, RawAttribute{Name: name, Data: data})
		}
	}
	return f, nil
}

func parseMethod(r *reader, ps *parseState) (*MethodNode, error) {
	pool := ps.pool
	m := &MethodNode{}
	m.Access = r.u2()
	var err error
	if m.Name, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}
	if m.Desc, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}
	attrCount := r.u2()
	for i := 0; i < attrCount; i++ {
		name, data, err := readAttribute(r, pool)
		if err != nil {
			return nil, err
		}
		switch name {
		case attrCode:
			if err := parseCode(data, ps, m); err != nil {
				return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
			}
		case attrExceptions:
			ar := &reader{data: data}
			n := ar.u2()
			for j := 0; j < n; j++ {
				ex, err := pool.className(ar.u2())
				if err != nil {
					return nil, err
				}
				m.Exceptions = append(m.Exceptions, ex)
			}
		case attrRuntimeVisibleAnn:
			ar := &reader{data: data}
			m.VisibleAnnotations, err = readAnnotations(ar, pool)
			if err != nil {
				return nil, err
			}
		case attrMethodParameters:
			ar := &reader{data: data}
			n := ar.u1()
			for j := 0; j < n; j++ {
				pname, err := pool.utf8(ar.u2())
				if err != nil {
					return nil, err
				}
				m.Params = append(m.Params, Parameter{Name: pname, Access: ar.u2()})
			}
		default:
			// Signature, Deprecated, AnnotationDefault and friends are
			// not modeled.
		}
	}
	return m, nil
}

func readAttribute(r *reader, pool *cpool) (string, []byte, error) {
	name, err := pool.utf8(r.u2())
	if err != nil {
		return "", nil, err
	}
	length := int(r.u4())
	data := r.bytes(length)
	if r.err != nil {
		return "", nil, r.err
	}
	return name, data, nil
}

func parseClassAttributes(r *reader, node *ClassNode, ps *parseState) error {
	pool := ps.pool
	attrCount := r.u2()
	for i := 0; i < attrCount; i++ {
		name, data, err := readAttribute(r, pool)
		if err != nil {
			return err
		}
		switch name {
		case attrSourceFile:
			ar := &reader{data: data}
			if node.SourceFile, err = pool.utf8(ar.u2()); err != nil {
				return err
			}
		case attrRuntimeVisibleAnn:
			ar := &reader{data: data}
			if node.VisibleAnnotations, err = readAnnotations(ar, pool); err != nil {
				return err
			}
		case attrBootstrapMethods:
			ar := &reader{data: data}
			n := ar.u2()
			for j := 0; j < n; j++ {
				entry := bootstrapEntry{ref: ar.u2()}
				argc := ar.u2()
				for k := 0; k < argc; k++ {
					entry.args = append(entry.args, ar.u2())
				}
				ps.bootstrap = append(ps.bootstrap, entry)
			}
			if ar.err != nil {
				return ar.err
			}
		default:
			node.Attrs = append(node.Attrs, RawAttribute{Name: name, Data: data})
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

func readAnnotations(r *reader, pool *cpool) ([]Annotation, error) {
	n := r.u2()
	anns := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		a, err := readAnnotation(r, pool)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

func readAnnotation(r *reader, pool *cpool) (Annotation, error) {
	a := Annotation{}
	var err error
	if a.Desc, err = pool.utf8(r.u2()); err != nil {
		return a, err
	}
	n := r.u2()
	for i := 0; i < n; i++ {
		name, err := pool.utf8(r.u2())
		if err != nil {
			return a, err
		}
		v, err := readElementValue(r, pool)
		if err != nil {
			return a, err
		}
		a.Values = append(a.Values, AnnotationValue{Name: name, Value: v})
	}
	return a, nil
}

func readElementValue(r *reader, pool *cpool) (any, error) {
	tag := r.u1()
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z', 'D', 'F', 'J':
		v, err := pool.constant(r.u2())
		if err != nil {
			return nil, err
		}
		return v, nil
	case 's':
		return pool.utf8(r.u2())
	case 'e':
		typeDesc, err := pool.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		constName, err := pool.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		return EnumValue{TypeDesc: typeDesc, Name: constName}, nil
	case 'c':
		desc, err := pool.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		t, err := TypeFromDescriptor(desc)
		if err != nil {
			// Void-returning method class values use "V".
			return ObjectType(desc), nil
		}
		return t, nil
	case '@':
		return readAnnotation(r, pool)
	case '[':
		n := r.u2()
		arr := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := readElementValue(r, pool)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("%w: unknown element value tag %q", ErrBadPool, tag)
}

// ---------------------------------------------------------------------------
// Code decoding
// ---------------------------------------------------------------------------

// rawInsn is a decoded instruction before label resolution: branch targets
// are bytecode offsets.
type rawInsn struct {
	pc      int
	insn    Insn
	targets []int
}

func parseCode(data []byte, ps *parseState, m *MethodNode) error {
	pool := ps.pool
	r := &reader{data: data}
	m.MaxStack = r.u2()
	m.MaxLocals = r.u2()
	codeLen := int(r.u4())
	code := r.bytes(codeLen)
	if r.err != nil {
		return r.err
	}

	raw, err := decodeInstructions(code, pool, ps)
	if err != nil {
		return err
	}

	// Offsets that need a label: branch targets, exception ranges and
	// handlers, local-variable ranges, line-number starts.
	needLabel := map[int]bool{}
	for _, ri := range raw {
		for _, t := range ri.targets {
			needLabel[t] = true
		}
	}

	type rawHandler struct{ start, end, handler, catchType int }
	var handlers []rawHandler
	excCount := r.u2()
	for i := 0; i < excCount; i++ {
		h := rawHandler{start: r.u2(), end: r.u2(), handler: r.u2(), catchType: r.u2()}
		handlers = append(handlers, h)
		needLabel[h.start] = true
		needLabel[h.end] = true
		needLabel[h.handler] = true
	}

	type rawLine struct{ pc, line int }
	type rawVar struct {
		start, length, nameIdx, descIdx, index int
	}
	var lines []rawLine
	var vars []rawVar

	attrCount := r.u2()
	for i := 0; i < attrCount; i++ {
		name, data, err := readAttribute(r, pool)
		if err != nil {
			return err
		}
		switch name {
		case attrLineNumberTable:
			ar := &reader{data: data}
			n := ar.u2()
			for j := 0; j < n; j++ {
				ln := rawLine{pc: ar.u2(), line: ar.u2()}
				lines = append(lines, ln)
				needLabel[ln.pc] = true
			}
		case attrLocalVarTable:
			ar := &reader{data: data}
			n := ar.u2()
			for j := 0; j < n; j++ {
				v := rawVar{start: ar.u2(), length: ar.u2(), nameIdx: ar.u2(), descIdx: ar.u2(), index: ar.u2()}
				vars = append(vars, v)
				needLabel[v.start] = true
				needLabel[v.start+v.length] = true
			}
		case attrStackMapTable:
			// Recomputed on write.
		default:
			// Code-level attributes beyond these are dropped.
		}
	}
	if r.err != nil {
		return r.err
	}

	labels := make(map[int]*Label, len(needLabel))
	for pc := range needLabel {
		labels[pc] = &Label{offset: pc}
	}

	lineAt := map[int][]int{}
	for _, ln := range lines {
		lineAt[ln.pc] = append(lineAt[ln.pc], ln.line)
	}

	list := NewInsnList()
	for _, ri := range raw {
		if lab, ok := labels[ri.pc]; ok {
			list.Append(lab)
			for _, line := range lineAt[ri.pc] {
				list.Append(&LineInsn{Line: line, Start: lab})
			}
		}
		resolveTargets(ri, labels)
		list.Append(ri.insn)
	}
	// A label exactly at code end anchors open-ended ranges.
	if lab, ok := labels[len(code)]; ok {
		list.Append(lab)
	}
	m.Code = list

	for _, h := range handlers {
		catchType, err := pool.optClassName(h.catchType)
		if err != nil {
			return err
		}
		m.TryCatch = append(m.TryCatch, &TryCatchBlock{
			Start:   labels[h.start],
			End:     labels[h.end],
			Handler: labels[h.handler],
			Type:    catchType,
		})
	}
	for _, v := range vars {
		name, err := pool.utf8(v.nameIdx)
		if err != nil {
			return err
		}
		desc, err := pool.utf8(v.descIdx)
		if err != nil {
			return err
		}
		m.LocalVars = append(m.LocalVars, &LocalVar{
			Name:  name,
			Desc:  desc,
			Start: labels[v.start],
			End:   labels[v.start+v.length],
			Index: v.index,
		})
	}
	return nil
}

func resolveTargets(ri rawInsn, labels map[int]*Label) {
	switch in := ri.insn.(type) {
	case *JumpInsn:
		in.Target = labels[ri.targets[0]]
	case *TableSwitchInsn:
		in.Default = labels[ri.targets[0]]
		in.Targets = make([]*Label, len(ri.targets)-1)
		for i, t := range ri.targets[1:] {
			in.Targets[i] = labels[t]
		}
	case *LookupSwitchInsn:
		in.Default = labels[ri.targets[0]]
		in.Targets = make([]*Label, len(ri.targets)-1)
		for i, t := range ri.targets[1:] {
			in.Targets[i] = labels[t]
		}
	}
}

func decodeInstructions(code []byte, pool *cpool, ps *parseState) ([]rawInsn, error) {
	var out []rawInsn
	r := &reader{data: code}
	for r.off < len(code) {
		pc := r.off
		op := r.u1()
		ri := rawInsn{pc: pc}
		switch {
		case op == OpBipush:
			ri.insn = &IntInsn{Opcode: op, Value: r.s1()}
		case op == OpSipush:
			ri.insn = &IntInsn{Opcode: op, Value: r.s2()}
		case op == OpNewarray:
			ri.insn = &IntInsn{Opcode: op, Value: r.u1()}
		case op == OpLdc:
			v, err := pool.constant(r.u1())
			if err != nil {
				return nil, err
			}
			ri.insn = &LdcInsn{Value: v}
		case op == OpLdcW || op == OpLdc2W:
			v, err := pool.constant(r.u2())
			if err != nil {
				return nil, err
			}
			ri.insn = &LdcInsn{Value: v}
		case op >= OpIload && op <= OpAload:
			ri.insn = &VarInsn{Opcode: op, Index: r.u1()}
		case op >= OpIload0 && op <= OpAload3:
			ri.insn = &VarInsn{Opcode: OpIload + (op-OpIload0)/4, Index: (op - OpIload0) % 4}
		case op >= OpIstore && op <= OpAstore:
			ri.insn = &VarInsn{Opcode: op, Index: r.u1()}
		case op >= OpIstore0 && op <= OpAstore3:
			ri.insn = &VarInsn{Opcode: OpIstore + (op-OpIstore0)/4, Index: (op - OpIstore0) % 4}
		case op == OpRet:
			ri.insn = &VarInsn{Opcode: op, Index: r.u1()}
		case op == OpIinc:
			ri.insn = &IincInsn{Index: r.u1(), Delta: r.s1()}
		case (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull:
			ri.insn = &JumpInsn{Opcode: op}
			ri.targets = []int{pc + r.s2()}
		case op == OpGotoW || op == OpJsrW:
			// Normalized to the narrow form; Write re-widens if needed.
			narrow := OpGoto
			if op == OpJsrW {
				narrow = OpJsr
			}
			ri.insn = &JumpInsn{Opcode: narrow}
			ri.targets = []int{pc + r.s4()}
		case op == OpTableswitch:
			r.skip((4 - (r.off % 4)) % 4)
			def := pc + r.s4()
			low := r.s4()
			high := r.s4()
			if r.err != nil {
				return nil, r.err
			}
			if high < low {
				return nil, fmt.Errorf("tableswitch at %d: high %d < low %d", pc, high, low)
			}
			in := &TableSwitchInsn{Low: low, High: high}
			ri.targets = append(ri.targets, def)
			for i := 0; i <= high-low; i++ {
				ri.targets = append(ri.targets, pc+r.s4())
			}
			ri.insn = in
		case op == OpLookupswitch:
			r.skip((4 - (r.off % 4)) % 4)
			def := pc + r.s4()
			n := r.s4()
			if r.err != nil {
				return nil, r.err
			}
			in := &LookupSwitchInsn{}
			ri.targets = append(ri.targets, def)
			for i := 0; i < n; i++ {
				in.Keys = append(in.Keys, r.s4())
				ri.targets = append(ri.targets, pc+r.s4())
			}
			ri.insn = in
		case op >= OpGetstatic && op <= OpPutfield:
			owner, name, desc, _, err := pool.memberRef(r.u2())
			if err != nil {
				return nil, err
			}
			ri.insn = &FieldInsn{Opcode: op, Owner: owner, Name: name, Desc: desc}
		case op >= OpInvokevirtual && op <= OpInvokeinterface:
			owner, name, desc, itf, err := pool.memberRef(r.u2())
			if err != nil {
				return nil, err
			}
			if op == OpInvokeinterface {
				r.skip(2) // count and zero byte
			}
			ri.insn = &MethodInsn{Opcode: op, Owner: owner, Name: name, Desc: desc, Itf: itf}
		case op == OpInvokedynamic:
			idx := r.u2()
			r.skip(2)
			e, err := pool.at(idx, tagInvokeDynamic)
			if err != nil {
				return nil, err
			}
			name, desc, err := pool.nameAndType(e.idx2)
			if err != nil {
				return nil, err
			}
			indy := &InvokeDynamicInsn{Name: name, Desc: desc}
			ps.indySites = append(ps.indySites, pendingIndy{insn: indy, bsmIndex: e.idx1})
			ri.insn = indy
		case op == OpNew || op == OpAnewarray || op == OpCheckcast || op == OpInstanceof:
			name, err := pool.className(r.u2())
			if err != nil {
				return nil, err
			}
			ri.insn = &TypeInsn{Opcode: op, Type: name}
		case op == OpMultianewarray:
			name, err := pool.className(r.u2())
			if err != nil {
				return nil, err
			}
			ri.insn = &MultiANewArrayInsn{Desc: name, Dims: r.u1()}
		case op == OpWide:
			wop := r.u1()
			if wop == OpIinc {
				ri.insn = &IincInsn{Index: r.u2(), Delta: r.s2()}
			} else {
				ri.insn = &VarInsn{Opcode: wop, Index: r.u2()}
			}
		default:
			if OpcodeName(op) == "" {
				return nil, fmt.Errorf("unknown opcode 0x%02X at %d", op, pc)
			}
			ri.insn = &SimpleInsn{Opcode: op}
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, ri)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].pc < out[j].pc })
	return out, nil
}
