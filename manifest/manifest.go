// Package manifest handles asm.toml project configuration for the
// offline transformer.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents an asm.toml configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Mixins  Mixins  `toml:"mixins"`
	Target  Target  `toml:"target"`
	Runtime Runtime `toml:"runtime"`

	// Dir is the directory containing the asm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Mixins configures where mixin classfiles come from.
type Mixins struct {
	// Dirs are directories scanned recursively for .class files whose
	// metadata declares mixin directives.
	Dirs []string `toml:"dirs"`
	// Patterns register matcher entries: a mixin class path paired with
	// a target-name prefix, e.g. "mixins/LogMixin.class" = "com/example/".
	Patterns map[string]string `toml:"patterns"`
}

// Target configures what gets transformed.
type Target struct {
	// Input is a jar file or a directory of .class files.
	Input string `toml:"input"`
	// Output receives the transformed jar or directory; defaults to
	// "<input>.transformed".
	Output string `toml:"output"`
}

// Runtime configures bundling of the runtime support classes.
type Runtime struct {
	// BundleSupport writes the generated support classes (CallbackInfo)
	// into the output.
	BundleSupport bool `toml:"bundle-support"`
	// Report is the path of the CBOR transform report; empty disables it.
	Report string `toml:"report"`
}

// Load parses an asm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "asm.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Mixins.Dirs) == 0 {
		m.Mixins.Dirs = []string{"mixins"}
	}
	if m.Target.Output == "" && m.Target.Input != "" {
		m.Target.Output = m.Target.Input + ".transformed"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an asm.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "asm.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// MixinDirPaths returns absolute paths for the configured mixin
// directories.
func (m *Manifest) MixinDirPaths() []string {
	var paths []string
	for _, d := range m.Mixins.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// InputPath returns the absolute input path.
func (m *Manifest) InputPath() string {
	return filepath.Join(m.Dir, m.Target.Input)
}

// OutputPath returns the absolute output path.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Dir, m.Target.Output)
}

// ReportPath returns the absolute report path, or "" when disabled.
func (m *Manifest) ReportPath() string {
	if m.Runtime.Report == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Runtime.Report)
}
