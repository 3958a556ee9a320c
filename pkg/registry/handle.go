package registry

import "sync/atomic"

// Handle is an atomically swappable reference to a Registry. Handlers read
// the current table through it; the config watcher replaces the whole
// table on reload. Individual entries stay immutable either way.
type Handle struct {
	current atomic.Pointer[Registry]
}

// NewHandle creates a Handle pointing at the given registry.
func NewHandle(r *Registry) *Handle {
	h := &Handle{}
	h.current.Store(r)
	return h
}

// Get returns the current registry.
func (h *Handle) Get() *Registry {
	return h.current.Load()
}

// Swap replaces the current registry.
func (h *Handle) Swap(r *Registry) {
	h.current.Store(r)
}
