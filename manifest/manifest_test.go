package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "asm.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[mixins]
dirs = ["build/mixins"]

[target]
input = "app.jar"
output = "app-patched.jar"

[runtime]
bundle-support = true
report = "transform.cbor"
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("name = %q", m.Project.Name)
	}
	if len(m.Mixins.Dirs) != 1 || m.Mixins.Dirs[0] != "build/mixins" {
		t.Errorf("dirs = %v", m.Mixins.Dirs)
	}
	if m.Target.Output != "app-patched.jar" {
		t.Errorf("output = %q", m.Target.Output)
	}
	if !m.Runtime.BundleSupport {
		t.Errorf("bundle-support lost")
	}
	if m.ReportPath() != filepath.Join(m.Dir, "transform.cbor") {
		t.Errorf("ReportPath = %q", m.ReportPath())
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[target]
input = "app.jar"
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Mixins.Dirs) != 1 || m.Mixins.Dirs[0] != "mixins" {
		t.Errorf("default mixin dirs = %v", m.Mixins.Dirs)
	}
	if m.Target.Output != "app.jar.transformed" {
		t.Errorf("default output = %q", m.Target.Output)
	}
	if m.ReportPath() != "" {
		t.Errorf("report should default off")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[target]\ninput = \"x.jar\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil {
		t.Fatalf("manifest not found from nested dir")
	}
	if m.Target.Input != "x.jar" {
		t.Errorf("input = %q", m.Target.Input)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil manifest when none exists")
	}
}
