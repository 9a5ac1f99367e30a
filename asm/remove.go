package asm

import (
	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// RemoveMethod and RemoveSynchronized
// ---------------------------------------------------------------------------

// applyRemoveMethod drops the named method from the target class.
func (c *TargetClassContext) applyRemoveMethod(d *RemoveMethodDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	out := c.Class.Methods[:0]
	for _, m := range c.Class.Methods {
		if m != tm {
			out = append(out, m)
		}
	}
	c.Class.Methods = out
	return true, nil
}

// applyRemoveSynchronized strips synchronization from the named method.
// This is a coarse strip: every monitorenter becomes a pop and the
// synchronized flag is cleared, assuming the method was method-level
// synchronized and well-formed to begin with. Hand-written monitor pairs
// are not rebalanced.
func (c *TargetClassContext) applyRemoveSynchronized(d *RemoveSynchronizedDirective) (bool, error) {
	tm, err := c.findTargetMethod(d.Key)
	if err != nil {
		return false, err
	}
	stripSynchronized(tm)
	return true, nil
}

func stripSynchronized(m *classfile.MethodNode) {
	m.Access &^= classfile.AccSynchronized
	if m.Code == nil {
		return
	}
	repl := make(map[classfile.Insn][]classfile.Insn)
	for _, in := range m.Code.All() {
		if in.Op() == classfile.OpMonitorenter {
			repl[in] = []classfile.Insn{&classfile.SimpleInsn{Opcode: classfile.OpPop}}
		}
	}
	if len(repl) > 0 {
		m.Code.Replace(repl)
	}
}
