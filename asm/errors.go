package asm

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// log is the diagnostic sink for per-directive warnings and failures.
// With no backend configured, messages are discarded; the CLI installs
// the simple stderr backend.
var log = commonlog.GetLogger("asm")

// Directive-level failure kinds. All are reported and skipped; only
// malformed input classfiles abort a transform.
var (
	// ErrTargetMissing marks a directive whose target method does not
	// exist on the target class.
	ErrTargetMissing = errors.New("directive target method not found")

	// ErrDirectiveShape marks a directive whose own declaration is
	// inconsistent (bad index, accessor signature mismatch, and so on).
	ErrDirectiveShape = errors.New("directive shape invalid")

	// ErrSignatureMismatch marks a handler whose signature is
	// incompatible with the target method.
	ErrSignatureMismatch = errors.New("handler signature mismatch")
)

// errNoBody marks a directive that needs executable code on a target
// method that has none.
func errNoBody(key MethodKey) error {
	return fmt.Errorf("%w: %s has no code", ErrDirectiveShape, key)
}
