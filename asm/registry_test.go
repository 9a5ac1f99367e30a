package asm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func testMixin(t *testing.T, targets ...string) *MixinClass {
	t.Helper()
	return newMixin(targets...).build(t)
}

func TestRegistryExactLookup(t *testing.T) {
	reg := NewRegistry()
	mx := testMixin(t, "a/B", "a/C")
	reg.Register(mx)

	if got := reg.Lookup("a/B"); len(got) != 1 || got[0] != mx {
		t.Fatalf("Lookup(a/B) = %v", got)
	}
	if got := reg.Lookup("a/C"); len(got) != 1 {
		t.Fatalf("Lookup(a/C) = %v", got)
	}
	if got := reg.Lookup("a/D"); got != nil {
		t.Fatalf("Lookup(a/D) = %v, want none", got)
	}
}

// Matcher entries come back before exact entries, each group in
// insertion order.
func TestRegistryOrdering(t *testing.T) {
	reg := NewRegistry()
	exact1 := testMixin(t, "a/B")
	exact2 := testMixin(t, "a/B")
	matched1 := testMixin(t)
	matched2 := testMixin(t)
	reg.Register(exact1)
	reg.RegisterMatcher(func(name string) bool { return strings.HasPrefix(name, "a/") }, matched1)
	reg.Register(exact2)
	reg.RegisterMatcher(func(name string) bool { return true }, matched2)

	got := reg.Lookup("a/B")
	want := []*MixinClass{matched1, matched2, exact1, exact2}
	if len(got) != len(want) {
		t.Fatalf("Lookup returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Lookup[%d] wrong: matcher entries must precede exact entries in insertion order", i)
		}
	}
}

func TestRegistryClear(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testMixin(t, "a/B"))
	reg.RegisterMatcher(func(string) bool { return true }, testMixin(t))
	reg.Clear()
	if got := reg.Lookup("a/B"); got != nil {
		t.Fatalf("Clear left entries behind: %v", got)
	}
}
