// Package report produces the machine-readable transform report the
// offline tool emits next to its output.
package report

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ClassReport records the outcome of transforming one class.
type ClassReport struct {
	ClassName string   `cbor:"class"`
	Changed   bool     `cbor:"changed"`
	Applied   []string `cbor:"applied,omitempty"`
}

// Report is one transform run over a target input.
type Report struct {
	Input   string        `cbor:"input"`
	Output  string        `cbor:"output"`
	Mixins  []string      `cbor:"mixins,omitempty"`
	Classes []ClassReport `cbor:"classes"`
}

// Add appends one class outcome.
func (r *Report) Add(className string, changed bool, applied []string) {
	r.Classes = append(r.Classes, ClassReport{
		ClassName: className,
		Changed:   changed,
		Applied:   applied,
	})
}

// ChangedCount returns how many classes were edited.
func (r *Report) ChangedCount() int {
	n := 0
	for _, c := range r.Classes {
		if c.Changed {
			n++
		}
	}
	return n
}

// Marshal serializes a Report to CBOR bytes.
func Marshal(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// Unmarshal deserializes a Report from CBOR bytes.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: unmarshal: %w", err)
	}
	return &r, nil
}

// WriteFile marshals the report and writes it to path.
func WriteFile(path string, r *Report) error {
	data, err := Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a report from path.
func ReadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
