package asm

import (
	"fmt"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Mixin class handle
// ---------------------------------------------------------------------------

// MixinClass is one loaded mixin: its raw classfile bytes, the parsed
// tree, and the directives derived from its metadata. The raw bytes stay
// around because body-copying directives re-read the handler's
// instructions from the mixin's own classfile.
type MixinClass struct {
	Bytes []byte
	Node  *classfile.ClassNode

	Directives []Directive
	ReplaceAll *ReplaceAllMethodsDirective

	// Targets lists the internal names this mixin applies to, from the
	// AsmMixin annotation. Empty for matcher-registered mixins.
	Targets []string

	// Singleton is true when the mixin is a process-wide singleton
	// object, detected by an INSTANCE static field of the mixin's own
	// type. Singleton handlers dispatch through INSTANCE; other mixins
	// get a synthesized per-target instance field.
	Singleton bool

	shadowFields  map[string]string    // mixin field name → target field name
	shadowMethods map[MethodKey]string // mixin method key → target method name
	copyMethods   map[MethodKey]string // mixin method key → copied target name
}

// LoadMixin parses mixin classfile bytes and derives its directive set.
func LoadMixin(data []byte) (*MixinClass, error) {
	node, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing mixin class: %w", err)
	}
	directives, replaceAll, err := extractDirectives(node)
	if err != nil {
		return nil, err
	}
	mx := &MixinClass{
		Bytes:         data,
		Node:          node,
		Directives:    directives,
		ReplaceAll:    replaceAll,
		shadowFields:  make(map[string]string),
		shadowMethods: make(map[MethodKey]string),
		copyMethods:   make(map[MethodKey]string),
	}

	if a, ok := node.Annotation(annMixin); ok {
		for _, t := range a.GetStrings("value") {
			mx.Targets = append(mx.Targets, internalName(t))
		}
		for _, t := range a.GetStrings("targets") {
			mx.Targets = append(mx.Targets, internalName(t))
		}
		for _, v := range asSlice(a.Get("value")) {
			if t, ok := v.(classfile.Type); ok && t.Sort() == classfile.SortObject {
				mx.Targets = append(mx.Targets, t.Internal())
			}
		}
	}

	if f := node.Field("INSTANCE"); f != nil &&
		f.Access&classfile.AccStatic != 0 &&
		f.Desc == classfile.ObjectType(node.Name).Descriptor() {
		mx.Singleton = true
	}

	for _, d := range directives {
		switch s := d.(type) {
		case *ShadowDirective:
			if s.Field != nil {
				mx.shadowFields[s.Field.Name] = s.Key.Name
			} else if s.Method != nil {
				mx.shadowMethods[MethodKey{Name: s.Method.Name, Desc: s.Method.Desc}] = s.Key.Name
			}
		case *CopyDirective:
			mx.copyMethods[MethodKey{Name: s.Handler.Name, Desc: s.Handler.Desc}] = s.Key.Name
		}
	}
	return mx, nil
}

// asSlice views an annotation element as a slice; scalars become a
// one-element slice.
func asSlice(v any) []any {
	switch c := v.(type) {
	case nil:
		return nil
	case []any:
		return c
	default:
		return []any{c}
	}
}

// internalName normalizes dotted class names to internal form.
func internalName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

// SimpleName returns the mixin's simple class name for the synthesized
// instance-field scheme.
func (mx *MixinClass) SimpleName() string { return mx.Node.SimpleName() }

// shadowFieldTarget resolves a mixin field reference to the shadowed
// target field name, if the field is declared as a shadow.
func (mx *MixinClass) shadowFieldTarget(name string) (string, bool) {
	t, ok := mx.shadowFields[name]
	return t, ok
}

// shadowMethodTarget resolves a mixin method reference to the shadowed
// target method name. Shadow method declarations match by name and
// descriptor, with a name-only fallback.
func (mx *MixinClass) shadowMethodTarget(name, desc string) (string, bool) {
	if t, ok := mx.shadowMethods[MethodKey{Name: name, Desc: desc}]; ok {
		return t, true
	}
	for k, t := range mx.shadowMethods {
		if k.Name == name {
			return t, true
		}
	}
	return "", false
}

// copyMethodTarget resolves a mixin method reference to the name its body
// is copied under on the target.
func (mx *MixinClass) copyMethodTarget(name, desc string) (string, bool) {
	t, ok := mx.copyMethods[MethodKey{Name: name, Desc: desc}]
	return t, ok
}
