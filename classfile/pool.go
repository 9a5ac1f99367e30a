package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Byte-level reader
// ---------------------------------------------------------------------------

var (
	ErrTruncated = errors.New("truncated classfile")
	ErrBadMagic  = errors.New("invalid magic number: expected 0xCAFEBABE")
	ErrBadPool   = errors.New("malformed constant pool")
)

// reader is a sticky-error big-endian cursor over a byte slice. After the
// first short read every accessor returns zero; callers check err at
// structural boundaries.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w at offset %d", ErrTruncated, r.off)
	}
}

func (r *reader) u1() int {
	if r.err != nil || r.off+1 > len(r.data) {
		r.fail()
		return 0
	}
	v := int(r.data[r.off])
	r.off++
	return v
}

func (r *reader) u2() int {
	if r.err != nil || r.off+2 > len(r.data) {
		r.fail()
		return 0
	}
	v := int(binary.BigEndian.Uint16(r.data[r.off:]))
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) s1() int { return int(int8(r.u1())) }
func (r *reader) s2() int { return int(int16(r.u2())) }
func (r *reader) s4() int { return int(int32(r.u4())) }

func (r *reader) bytes(n int) []byte {
	if n < 0 || r.err != nil || r.off+n > len(r.data) {
		r.fail()
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) skip(n int) { r.bytes(n) }

// ---------------------------------------------------------------------------
// Constant pool (read side)
// ---------------------------------------------------------------------------

type cpEntry struct {
	tag  uint8
	str  string // Utf8
	i32  int32
	i64  int64
	f32  float32
	f64  float64
	idx1 int
	idx2 int
	kind int // MethodHandle reference kind
}

// cpool is a parsed constant pool, indexed 1..count-1 with the usual
// phantom slot after long and double entries.
type cpool struct {
	entries []cpEntry
}

// MethodTypeRef is an ldc/bootstrap-argument constant of type MethodType.
type MethodTypeRef struct {
	Desc string
}

func readPool(r *reader) (*cpool, error) {
	count := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	p := &cpool{entries: make([]cpEntry, count)}
	for i := 1; i < count; i++ {
		tag := uint8(r.u1())
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n := r.u2()
			e.str = string(r.bytes(n))
		case tagInteger:
			e.i32 = int32(r.u4())
		case tagFloat:
			e.f32 = math.Float32frombits(r.u4())
		case tagLong:
			e.i64 = int64(r.u4())<<32 | int64(r.u4())
		case tagDouble:
			e.f64 = math.Float64frombits(uint64(r.u4())<<32 | uint64(r.u4()))
		case tagClass, tagString, tagMethodType:
			e.idx1 = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagInvokeDynamic:
			e.idx1 = r.u2()
			e.idx2 = r.u2()
		case tagMethodHandle:
			e.kind = r.u1()
			e.idx1 = r.u2()
		default:
			return nil, fmt.Errorf("%w: unknown tag %d at index %d", ErrBadPool, tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries[i] = e
		if tag == tagLong || tag == tagDouble {
			i++ // phantom slot
		}
	}
	return p, nil
}

func (p *cpool) at(i int, tag uint8) (cpEntry, error) {
	if i <= 0 || i >= len(p.entries) {
		return cpEntry{}, fmt.Errorf("%w: index %d out of range", ErrBadPool, i)
	}
	e := p.entries[i]
	if tag != 0 && e.tag != tag {
		return cpEntry{}, fmt.Errorf("%w: index %d has tag %d, want %d", ErrBadPool, i, e.tag, tag)
	}
	return e, nil
}

func (p *cpool) utf8(i int) (string, error) {
	e, err := p.at(i, tagUtf8)
	return e.str, err
}

// className resolves a Class entry to its internal name.
func (p *cpool) className(i int) (string, error) {
	e, err := p.at(i, tagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(e.idx1)
}

// optClassName is className tolerating index 0 (used by super_class and
// catch_type).
func (p *cpool) optClassName(i int) (string, error) {
	if i == 0 {
		return "", nil
	}
	return p.className(i)
}

func (p *cpool) nameAndType(i int) (name, desc string, err error) {
	e, err := p.at(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.utf8(e.idx1); err != nil {
		return "", "", err
	}
	desc, err = p.utf8(e.idx2)
	return name, desc, err
}

// memberRef resolves a Fieldref/Methodref/InterfaceMethodref entry.
func (p *cpool) memberRef(i int) (owner, name, desc string, itf bool, err error) {
	e, err := p.at(i, 0)
	if err != nil {
		return
	}
	switch e.tag {
	case tagFieldref, tagMethodref:
	case tagInterfaceMethodref:
		itf = true
	default:
		err = fmt.Errorf("%w: index %d is not a member ref", ErrBadPool, i)
		return
	}
	if owner, err = p.className(e.idx1); err != nil {
		return
	}
	name, desc, err = p.nameAndType(e.idx2)
	return
}

func (p *cpool) handle(i int) (Handle, error) {
	e, err := p.at(i, tagMethodHandle)
	if err != nil {
		return Handle{}, err
	}
	owner, name, desc, itf, err := p.memberRef(e.idx1)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: e.kind, Owner: owner, Name: name, Desc: desc, Itf: itf}, nil
}

// constant resolves a loadable constant for ldc and bootstrap arguments.
func (p *cpool) constant(i int) (any, error) {
	e, err := p.at(i, 0)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case tagInteger:
		return e.i32, nil
	case tagFloat:
		return e.f32, nil
	case tagLong:
		return e.i64, nil
	case tagDouble:
		return e.f64, nil
	case tagString:
		return p.utf8(e.idx1)
	case tagClass:
		name, err := p.utf8(e.idx1)
		if err != nil {
			return nil, err
		}
		if name != "" && name[0] == '[' {
			return TypeFromDescriptor(name)
		}
		return ObjectType(name), nil
	case tagMethodHandle:
		return p.handle(i)
	case tagMethodType:
		desc, err := p.utf8(e.idx1)
		if err != nil {
			return nil, err
		}
		return MethodTypeRef{Desc: desc}, nil
	}
	return nil, fmt.Errorf("%w: index %d (tag %d) is not loadable", ErrBadPool, i, e.tag)
}
