package classfile

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Textual disassembly
// ---------------------------------------------------------------------------

// Sprint renders a parsed class in a compact javap-like form, for
// debugging and the CLI dump mode.
func Sprint(node *ClassNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s extends %s", node.Name, node.SuperName)
	if len(node.Interfaces) > 0 {
		fmt.Fprintf(&b, " implements %s", strings.Join(node.Interfaces, ", "))
	}
	fmt.Fprintf(&b, " (v%d.%d, flags 0x%04X)\n", node.MajorVersion, node.MinorVersion, node.Access)

	for _, f := range node.Fields {
		fmt.Fprintf(&b, "  field %s : %s (flags 0x%04X)", f.Name, f.Desc, f.Access)
		if f.ConstantValue != nil {
			fmt.Fprintf(&b, " = %v", f.ConstantValue)
		}
		b.WriteByte('\n')
	}
	for _, m := range node.Methods {
		fmt.Fprintf(&b, "  method %s%s (flags 0x%04X)\n", m.Name, m.Desc, m.Access)
		if m.Code == nil {
			continue
		}
		labels := labelNames(m.Code)
		for _, in := range m.Code.All() {
			b.WriteString("    ")
			b.WriteString(sprintInsn(in, labels))
			b.WriteByte('\n')
		}
		for _, h := range m.TryCatch {
			catch := h.Type
			if catch == "" {
				catch = "finally"
			}
			fmt.Fprintf(&b, "    try %s..%s handler %s (%s)\n",
				labels[h.Start], labels[h.End], labels[h.Handler], catch)
		}
	}
	return b.String()
}

func labelNames(list *InsnList) map[*Label]string {
	names := make(map[*Label]string)
	n := 0
	for _, in := range list.All() {
		if lab, ok := in.(*Label); ok {
			names[lab] = fmt.Sprintf("L%d", n)
			n++
		}
	}
	return names
}

func labelName(names map[*Label]string, lab *Label) string {
	if name, ok := names[lab]; ok {
		return name
	}
	return "L?"
}

func sprintInsn(in Insn, labels map[*Label]string) string {
	switch n := in.(type) {
	case *Label:
		return labelName(labels, n) + ":"
	case *LineInsn:
		return fmt.Sprintf(".line %d", n.Line)
	case *SimpleInsn:
		return OpcodeName(n.Opcode)
	case *IntInsn:
		return fmt.Sprintf("%s %d", OpcodeName(n.Opcode), n.Value)
	case *VarInsn:
		return fmt.Sprintf("%s %d", OpcodeName(n.Opcode), n.Index)
	case *TypeInsn:
		return fmt.Sprintf("%s %s", OpcodeName(n.Opcode), n.Type)
	case *FieldInsn:
		return fmt.Sprintf("%s %s.%s : %s", OpcodeName(n.Opcode), n.Owner, n.Name, n.Desc)
	case *MethodInsn:
		return fmt.Sprintf("%s %s.%s%s", OpcodeName(n.Opcode), n.Owner, n.Name, n.Desc)
	case *InvokeDynamicInsn:
		return fmt.Sprintf("invokedynamic %s%s", n.Name, n.Desc)
	case *JumpInsn:
		return fmt.Sprintf("%s %s", OpcodeName(n.Opcode), labelName(labels, n.Target))
	case *LdcInsn:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("ldc %q", s)
		}
		return fmt.Sprintf("ldc %v", n.Value)
	case *IincInsn:
		return fmt.Sprintf("iinc %d %d", n.Index, n.Delta)
	case *TableSwitchInsn:
		return fmt.Sprintf("tableswitch %d..%d default %s", n.Low, n.High, labelName(labels, n.Default))
	case *LookupSwitchInsn:
		return fmt.Sprintf("lookupswitch %d cases default %s", len(n.Keys), labelName(labels, n.Default))
	case *MultiANewArrayInsn:
		return fmt.Sprintf("multianewarray %s %d", n.Desc, n.Dims)
	}
	return fmt.Sprintf("<%T>", in)
}
