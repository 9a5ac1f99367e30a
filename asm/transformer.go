package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Class transformer entry point
// ---------------------------------------------------------------------------

// Transformer applies registered mixins to target classfile bytes.
// Distinct classes may be transformed concurrently; the registry must not
// be mutated while transforms are running.
type Transformer struct {
	Registry *Registry

	// Resolver answers common-superclass queries during frame
	// recomputation, typically backed by the caller's class path. Nil
	// falls back to the java/lang/Object join.
	Resolver classfile.SuperclassResolver
}

// NewTransformer wraps a registry.
func NewTransformer(reg *Registry) *Transformer {
	return &Transformer{Registry: reg}
}

// Outcome summarizes one transform for reporting.
type Outcome struct {
	ClassName string
	Changed   bool
	Applied   []string // descriptions of the directives that edited the class
}

// Transform rewrites one class. Input bytes come back untouched when no
// registered mixin matches or no directive produced an edit.
func (t *Transformer) Transform(className string, data []byte) ([]byte, error) {
	out, _, err := t.TransformDetailed(className, data)
	return out, err
}

// TransformDetailed is Transform plus the per-class outcome.
func (t *Transformer) TransformDetailed(className string, data []byte) ([]byte, *Outcome, error) {
	outcome := &Outcome{ClassName: className}
	mixins := t.Registry.Lookup(className)
	if len(mixins) == 0 {
		return data, outcome, nil
	}

	node, err := classfile.Parse(data)
	if err != nil {
		return nil, outcome, fmt.Errorf("parsing target class %s: %w", className, err)
	}

	for _, mx := range mixins {
		ctx := NewTargetClassContext(node, mx)
		ctx.Apply()
		if ctx.Changed() {
			outcome.Changed = true
			outcome.Applied = append(outcome.Applied, ctx.Applied...)
		}
	}
	if !outcome.Changed {
		return data, outcome, nil
	}

	out, err := classfile.Write(node, t.Resolver)
	if err != nil {
		return nil, outcome, fmt.Errorf("writing transformed class %s: %w", className, err)
	}
	return out, outcome, nil
}
