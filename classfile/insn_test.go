package classfile

import (
	"testing"
)

// ---------------------------------------------------------------------------
// InsnList tests
// ---------------------------------------------------------------------------

func TestInsnListEdits(t *testing.T) {
	a := &SimpleInsn{Opcode: OpNop}
	b := &SimpleInsn{Opcode: OpDup}
	c := &SimpleInsn{Opcode: OpPop}

	l := NewInsnList()
	l.Append(a, c)
	l.InsertBefore(c, b)
	if l.Len() != 3 || l.At(0) != a || l.At(1) != b || l.At(2) != c {
		t.Fatalf("InsertBefore produced wrong order")
	}

	d := &SimpleInsn{Opcode: OpSwap}
	l.InsertAfter(a, d)
	if l.At(1) != d {
		t.Fatalf("InsertAfter produced wrong order")
	}

	l.Remove(d)
	if l.Len() != 3 || l.IndexOf(d) != -1 {
		t.Fatalf("Remove failed")
	}

	l.Prepend(d)
	if l.First() != d || l.Last() != c {
		t.Fatalf("Prepend/First/Last failed")
	}

	l.Replace(map[Insn][]Insn{b: {a}, c: nil})
	if l.Len() != 3 {
		t.Fatalf("Replace: len = %d, want 3", l.Len())
	}
}

func TestInsnListCloneFreshLabels(t *testing.T) {
	start := &Label{}
	end := &Label{}
	jump := &JumpInsn{Opcode: OpGoto, Target: start}
	sw := &TableSwitchInsn{Low: 0, High: 1, Default: end, Targets: []*Label{start, end}}

	l := NewInsnList()
	l.Append(start, jump, sw, end)

	clone, labels := l.Clone()
	if clone.Len() != l.Len() {
		t.Fatalf("clone len = %d, want %d", clone.Len(), l.Len())
	}
	// Every label in the clone is a fresh identity.
	newStart := labels[start]
	newEnd := labels[end]
	if newStart == nil || newEnd == nil || newStart == start || newEnd == end {
		t.Fatalf("labels were not freshly mapped")
	}
	cj := clone.At(1).(*JumpInsn)
	if cj == jump || cj.Target != newStart {
		t.Errorf("jump target not remapped through fresh label")
	}
	cs := clone.At(2).(*TableSwitchInsn)
	if cs.Default != newEnd || cs.Targets[0] != newStart || cs.Targets[1] != newEnd {
		t.Errorf("switch targets not remapped")
	}
	// Mutating the clone leaves the original untouched.
	cj.Opcode = OpIfeq
	if jump.Opcode != OpGoto {
		t.Errorf("clone shares nodes with original")
	}
}

func TestLabelReferencedOutsideMapCarriesOver(t *testing.T) {
	outside := &Label{}
	jump := &JumpInsn{Opcode: OpGoto, Target: outside}
	l := NewInsnList()
	l.Append(jump)
	clone, _ := l.Clone()
	if clone.At(0).(*JumpInsn).Target != outside {
		t.Errorf("label not in list should carry over unchanged")
	}
}
