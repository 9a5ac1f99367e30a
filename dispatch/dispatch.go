// Package dispatch is the runtime dispatch surface transformed code
// forwards through: user-installed replacements keyed by a
// method-descriptor string, with a type-defaulting fallback.
package dispatch

import (
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

var log = commonlog.GetLogger("asm.dispatch")

// castPrefix marks cast-style descriptors. Cast descriptors carry no
// caller information; this is a known limitation preserved from the
// original design.
const castPrefix = "<cast> "

// Replacement is a user-supplied stand-in for one method, keyed by its
// owner-and-descriptor string.
type Replacement func(receiver any, args []any) any

// Manager holds installed replacements. Install everything before
// transformed code starts calling in; Invoke takes the read path only.
type Manager struct {
	mu           sync.RWMutex
	replacements map[string]Replacement
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{replacements: make(map[string]Replacement)}
}

// Default is the process-wide manager behind the static entry points.
var Default = NewManager()

// Install registers a replacement for a descriptor key.
func (m *Manager) Install(desc string, r Replacement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacements[desc] = r
}

// Uninstall removes a replacement.
func (m *Manager) Uninstall(desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.replacements, desc)
}

// Clear removes every replacement.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacements = make(map[string]Replacement)
}

func (m *Manager) lookup(desc string) (Replacement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.replacements[desc]
	return r, ok
}

// Invoke runs the replacement installed for desc, falling back to a
// type-appropriate default value. The missing-replacement case is
// reported once per call at debug level.
func (m *Manager) Invoke(receiver any, desc string, ret classfile.Type, args []any) any {
	if cut, ok := strings.CutPrefix(desc, castPrefix); ok {
		return m.cast(receiver, cut, ret)
	}
	if r, ok := m.lookup(desc); ok {
		return r(receiver, args)
	}
	log.Debugf("no replacement installed for %s, using default", desc)
	return m.defaultValue(ret)
}

// InvokeIgnore is the replace-all-methods entry point: identical shape,
// but a missing replacement is the expected case and falls through to
// the default silently.
func (m *Manager) InvokeIgnore(receiver any, desc string, ret classfile.Type, args []any) any {
	if cut, ok := strings.CutPrefix(desc, castPrefix); ok {
		return m.cast(receiver, cut, ret)
	}
	if r, ok := m.lookup(desc); ok {
		return r(receiver, args)
	}
	return m.defaultValue(ret)
}

// cast returns the receiver unchanged unless it is nil or a
// RecursiveReplacer whose TypeName differs from the cast type; those two
// cases get the default value. Any other receiver passes through without
// a type check.
func (m *Manager) cast(receiver any, typeName string, ret classfile.Type) any {
	if receiver == nil {
		return m.defaultValue(ret)
	}
	if rr, ok := receiver.(*RecursiveReplacer); ok && rr.TypeName != typeName {
		return m.defaultValue(ret)
	}
	return receiver
}

// RecursiveReplacer stands in for an uninstantiable reference type, the
// way a Proxy would: every call through it re-enters the manager.
type RecursiveReplacer struct {
	TypeName string
	mgr      *Manager
}

// Call dispatches a method on the replacer through its manager.
func (r *RecursiveReplacer) Call(desc string, ret classfile.Type, args []any) any {
	return r.mgr.Invoke(r, desc, ret, args)
}

// defaultValue is the fallback table: zero for primitives, empty for
// strings and arrays, and a recursive replacer for other reference
// types.
func (m *Manager) defaultValue(ret classfile.Type) any {
	switch ret.Sort() {
	case classfile.SortVoid:
		return nil
	case classfile.SortBoolean:
		return false
	case classfile.SortChar:
		return int32(0)
	case classfile.SortByte, classfile.SortShort, classfile.SortInt:
		return int32(0)
	case classfile.SortFloat:
		return float32(0)
	case classfile.SortLong:
		return int64(0)
	case classfile.SortDouble:
		return float64(0)
	case classfile.SortArray:
		return []any{}
	}
	switch ret.Internal() {
	case "java/lang/String":
		return ""
	case "java/lang/Object":
		return &RecursiveReplacer{TypeName: "java/lang/Object", mgr: m}
	}
	return &RecursiveReplacer{TypeName: ret.Internal(), mgr: m}
}

// ---------------------------------------------------------------------------
// Static entry points
// ---------------------------------------------------------------------------

// Invoke is the static entry point behind redirected calls.
func Invoke(receiver any, desc string, ret classfile.Type, args []any) any {
	return Default.Invoke(receiver, desc, ret, args)
}

// InvokeIgnore is the static entry point behind replace-all-methods
// stubs.
func InvokeIgnore(receiver any, desc string, ret classfile.Type, args []any) any {
	return Default.InvokeIgnore(receiver, desc, ret, args)
}
