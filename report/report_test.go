package report

import (
	"path/filepath"
	"testing"
)

func TestReportRoundTrip(t *testing.T) {
	r := &Report{
		Input:  "app.jar",
		Output: "app-patched.jar",
		Mixins: []string{"sample/TestMixin"},
	}
	r.Add("sample/Test", true, []string{"overwrite testA0"})
	r.Add("sample/Other", false, nil)

	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Input != r.Input || back.Output != r.Output {
		t.Errorf("identity lost: %+v", back)
	}
	if len(back.Classes) != 2 || !back.Classes[0].Changed || back.Classes[1].Changed {
		t.Errorf("classes drifted: %+v", back.Classes)
	}
	if back.ChangedCount() != 1 {
		t.Errorf("ChangedCount = %d", back.ChangedCount())
	}
}

// Canonical encoding is deterministic.
func TestMarshalDeterministic(t *testing.T) {
	r := &Report{Input: "a", Output: "b"}
	r.Add("x", true, []string{"d1", "d2"})
	first, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("encoding not deterministic")
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.cbor")
	r := &Report{Input: "in", Output: "out"}
	r.Add("sample/Test", true, []string{"redirect println"})
	if err := WriteFile(path, r); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(back.Classes) != 1 || back.Classes[0].ClassName != "sample/Test" {
		t.Errorf("round trip drifted: %+v", back)
	}
}
