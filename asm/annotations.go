package asm

import (
	"fmt"
	"strings"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// ---------------------------------------------------------------------------
// Directive metadata surface
// ---------------------------------------------------------------------------

// AnnotationBase is the internal-name prefix of the directive annotations.
const AnnotationBase = "com/relay/asm/annotation/"

const (
	annMixin              = AnnotationBase + "AsmMixin"
	annReplaceAllMethods  = AnnotationBase + "ReplaceAllMethods"
	annInject             = AnnotationBase + "AsmInject"
	annOverwrite          = AnnotationBase + "Overwrite"
	annModifyArg          = AnnotationBase + "ModifyArg"
	annModifyReturnValue  = AnnotationBase + "ModifyReturnValue"
	annModifyConstant     = AnnotationBase + "ModifyConstant"
	annRedirect           = AnnotationBase + "Redirect"
	annAccessor           = AnnotationBase + "Accessor"
	annInvoker            = AnnotationBase + "Invoker"
	annShadow             = AnnotationBase + "Shadow"
	annCopy               = AnnotationBase + "Copy"
	annRemoveMethod       = AnnotationBase + "RemoveMethod"
	annRemoveSynchronized = AnnotationBase + "RemoveSynchronized"
	annMutable            = AnnotationBase + "Mutable"
	annFinal              = AnnotationBase + "Final"
)

// shadowPrefix marks mixin members that stand in for a target member of
// the same name minus the prefix.
const shadowPrefix = "shadow_"

// parseTargetKey turns a directive's "method" element into a MethodKey,
// falling back to the handler's own name when the element is absent.
func parseTargetKey(spec, fallback string) MethodKey {
	if spec == "" {
		return MethodKey{Name: fallback}
	}
	_, name, desc := ParseMethodSignature(spec)
	return MethodKey{Name: name, Desc: desc}
}

func parseAt(a classfile.Annotation, name string) At {
	nested, ok := a.GetAnnotation(name)
	if !ok {
		return At{}
	}
	at := At{
		Value:  nested.GetString("value", ""),
		Target: nested.GetString("target", ""),
		By:     nested.GetInt("by", 0),
		Args:   nested.GetStrings("args"),
	}
	switch nested.GetEnum("shift", "BEFORE") {
	case "AFTER":
		at.Shift = ShiftAfter
	case "REPLACE":
		at.Shift = ShiftReplace
	default:
		at.Shift = ShiftBefore
	}
	return at
}

func parseSlice(a classfile.Annotation, name string) Slice {
	nested, ok := a.GetAnnotation(name)
	if !ok {
		return Slice{}
	}
	return Slice{
		From: nested.GetString("from", ""),
		To:   nested.GetString("to", ""),
		ID:   nested.GetString("id", ""),
	}
}

// methodDirective derives the directive (if any) declared by one mixin
// method.
func methodDirective(m *classfile.MethodNode) (Directive, error) {
	if a, ok := m.Annotation(annInject); ok {
		d := &InjectDirective{
			handlerDirective: handlerDirective{
				Key:     parseTargetKey(a.GetString("method", ""), m.Name),
				Handler: m,
			},
			Cancellable: a.GetBool("cancellable", false),
			At:          parseAt(a, "at"),
			Slice:       parseSlice(a, "slice"),
			Ordinal:     a.GetInt("ordinal", -1),
			Inline:      a.GetBool("inline", false),
			Require:     a.GetInt("require", 0),
			Expect:      a.GetInt("expect", 0),
			Allow:       a.GetInt("allow", 0),
		}
		switch a.GetEnum("target", "HEAD") {
		case "TAIL":
			d.Point = PointTail
		case "RETURN":
			d.Point = PointReturn
		case "INVOKE":
			d.Point = PointInvoke
		default:
			d.Point = PointHead
		}
		return d, nil
	}
	if a, ok := m.Annotation(annOverwrite); ok {
		return &OverwriteDirective{handlerDirective{
			Key:     parseTargetKey(a.GetString("method", ""), m.Name),
			Handler: m,
		}}, nil
	}
	if a, ok := m.Annotation(annModifyArg); ok {
		return &ModifyArgDirective{
			handlerDirective: handlerDirective{
				Key:     parseTargetKey(a.GetString("method", ""), m.Name),
				Handler: m,
			},
			Index: a.GetInt("index", 0),
			At:    parseAt(a, "at"),
			Slice: parseSlice(a, "slice"),
		}, nil
	}
	if a, ok := m.Annotation(annModifyReturnValue); ok {
		return &ModifyReturnValueDirective{
			handlerDirective: handlerDirective{
				Key:     parseTargetKey(a.GetString("method", ""), m.Name),
				Handler: m,
			},
			At: parseAt(a, "at"),
		}, nil
	}
	if a, ok := m.Annotation(annModifyConstant); ok {
		return &ModifyConstantDirective{
			handlerDirective: handlerDirective{
				Key:     parseTargetKey(a.GetString("method", ""), m.Name),
				Handler: m,
			},
			Constant: a.GetString("constant", ""),
		}, nil
	}
	if a, ok := m.Annotation(annRedirect); ok {
		at := parseAt(a, "at")
		if t := a.GetString("target", ""); t != "" {
			at.Target = t
		}
		return &RedirectDirective{
			handlerDirective: handlerDirective{
				Key:     parseTargetKey(a.GetString("method", ""), m.Name),
				Handler: m,
			},
			At:    at,
			Slice: parseSlice(a, "slice"),
		}, nil
	}
	if a, ok := m.Annotation(annAccessor); ok {
		name := a.GetString("value", "")
		if name == "" {
			name = accessorFieldName(m.Name)
		}
		return &AccessorDirective{
			handlerDirective: handlerDirective{Key: MethodKey{Name: m.Name, Desc: m.Desc}, Handler: m},
			FieldName:        name,
		}, nil
	}
	if a, ok := m.Annotation(annInvoker); ok {
		name := a.GetString("value", "")
		if name == "" {
			name = m.Name
		}
		return &InvokerDirective{
			handlerDirective: handlerDirective{Key: MethodKey{Name: m.Name, Desc: m.Desc}, Handler: m},
			MethodName:       name,
		}, nil
	}
	if a, ok := m.Annotation(annShadow); ok {
		key := parseTargetKey(a.GetString("method", ""), shadowTargetName(m.Name))
		return &ShadowDirective{Key: key, Method: m}, nil
	}
	if a, ok := m.Annotation(annCopy); ok {
		return &CopyDirective{handlerDirective{
			Key:     parseTargetKey(a.GetString("method", ""), m.Name),
			Handler: m,
		}}, nil
	}
	if a, ok := m.Annotation(annRemoveMethod); ok {
		return &RemoveMethodDirective{Key: parseTargetKey(a.GetString("method", ""), m.Name)}, nil
	}
	if a, ok := m.Annotation(annRemoveSynchronized); ok {
		return &RemoveSynchronizedDirective{Key: parseTargetKey(a.GetString("method", ""), m.Name)}, nil
	}
	return nil, nil
}

// fieldDirectives derives the directives declared by one mixin field.
func fieldDirectives(f *classfile.FieldNode) []Directive {
	var out []Directive
	var shadowed string
	if _, ok := f.Annotation(annShadow); ok {
		shadowed = shadowTargetName(f.Name)
		out = append(out, &ShadowDirective{Key: MethodKey{Name: shadowed}, Field: f})
	}
	if _, ok := f.Annotation(annMutable); ok {
		name := shadowed
		if name == "" {
			name = shadowTargetName(f.Name)
		}
		out = append(out, &MutableDirective{FieldName: name})
	}
	if _, ok := f.Annotation(annFinal); ok {
		name := shadowed
		if name == "" {
			name = shadowTargetName(f.Name)
		}
		out = append(out, &FinalDirective{FieldName: name})
	}
	return out
}

// shadowTargetName applies the shadow_ prefix convention.
func shadowTargetName(name string) string {
	return strings.TrimPrefix(name, shadowPrefix)
}

// accessorFieldName derives a field name from a getX/setX/isX handler name.
func accessorFieldName(handler string) string {
	for _, prefix := range []string{"get", "set", "is"} {
		if rest, ok := strings.CutPrefix(handler, prefix); ok && rest != "" {
			return strings.ToLower(rest[:1]) + rest[1:]
		}
	}
	return handler
}

// extractDirectives walks a parsed mixin class and derives its directive
// set. Field directives come first so the driver applies them before any
// method-level edit.
func extractDirectives(node *classfile.ClassNode) ([]Directive, *ReplaceAllMethodsDirective, error) {
	var out []Directive
	var replaceAll *ReplaceAllMethodsDirective
	if a, ok := node.Annotation(annReplaceAllMethods); ok {
		replaceAll = &ReplaceAllMethodsDirective{RemoveSync: a.GetBool("removeSync", false)}
	}
	for _, f := range node.Fields {
		out = append(out, fieldDirectives(f)...)
	}
	for _, m := range node.Methods {
		d, err := methodDirective(m)
		if err != nil {
			return nil, nil, fmt.Errorf("mixin %s.%s: %w", node.Name, m.Name, err)
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, replaceAll, nil
}
