package asm

import "sync"

// ---------------------------------------------------------------------------
// Mixin registry
// ---------------------------------------------------------------------------

// Matcher selects target classes by internal name.
type Matcher func(internalName string) bool

// Registry maps target class names to applicable mixins. Matcher entries
// are considered before exact entries, each group in insertion order.
//
// Lookups run concurrently at transform time; registration must complete
// before the transformer is enabled and must never race a transform.
type Registry struct {
	mu      sync.RWMutex
	exact   map[string][]*MixinClass
	matched []matcherEntry
}

type matcherEntry struct {
	match Matcher
	mixin *MixinClass
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string][]*MixinClass)}
}

// Register indexes a mixin under each of its declared target names.
func (r *Registry) Register(mx *MixinClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range mx.Targets {
		r.exact[t] = append(r.exact[t], mx)
	}
}

// RegisterMatcher indexes a mixin under a name predicate.
func (r *Registry) RegisterMatcher(match Matcher, mx *MixinClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched = append(r.matched, matcherEntry{match: match, mixin: mx})
}

// Lookup returns the mixins applicable to a target class: matcher entries
// first, then exact entries.
func (r *Registry) Lookup(internalName string) []*MixinClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*MixinClass
	for _, e := range r.matched {
		if e.match(internalName) {
			out = append(out, e.mixin)
		}
	}
	out = append(out, r.exact[internalName]...)
	return out
}

// Clear atomically empties both indexes.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact = make(map[string][]*MixinClass)
	r.matched = nil
}
