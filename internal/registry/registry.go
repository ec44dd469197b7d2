package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Well-known tags.
const (
	TagCollector = "collector"
	TagRemote    = "remote"
	TagModule    = "module"
	TagBase      = "base"
	TagRoute     = "route"
)

// Module is the interface that compiled-in components implement to add their
// entries at startup.
type Module interface {
	Register(r *Registry)
}

// Registry holds every entry of a single application instance. It replaces
// process-wide static state: the composition root owns one and passes it to
// whatever needs lookups.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	order     []*Entry
	collected map[string]bool
	claims    map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:   make(map[string]*Entry),
		collected: make(map[string]bool),
		claims:    make(map[string]struct{}),
	}
}

// Register lets each module add its entries.
func (r *Registry) Register(modules ...Module) {
	for _, mod := range modules {
		slog.Debug("Registering module.", "module", fmt.Sprintf("%T", mod))
		mod.Register(r)
	}
}

// Add returns the entry under name, creating it when missing.
func (r *Registry) Add(name string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e
	}
	e := &Entry{reg: r, name: name}
	r.entries[name] = e
	r.order = append(r.order, e)
	slog.Debug("Registered entry.", "name", name)
	return e
}

// Set adds (or reuses) the entry under name with a pre-built instance.
func (r *Registry) Set(name string, object any) *Entry {
	e := r.Add(name)
	e.setObject(object)
	return e
}

// Entry returns the entry under name, or nil.
func (r *Registry) Entry(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

// Get resolves the instance registered under name. It returns nil without
// error when no such entry exists.
func (r *Registry) Get(ctx context.Context, name string) (any, error) {
	e := r.Entry(name)
	if e == nil {
		return nil, nil
	}
	return e.Object(ctx)
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Each calls fn for every entry in registration order and collects the
// non-nil results.
func (r *Registry) Each(fn func(e *Entry) any) []any {
	var out []any
	for _, e := range r.Entries() {
		if v := fn(e); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the first entry matching pred, or nil.
func (r *Registry) Find(pred func(e *Entry) bool) *Entry {
	for _, e := range r.Entries() {
		if pred(e) {
			return e
		}
	}
	return nil
}

// Finds returns every entry matching pred in registration order.
func (r *Registry) Finds(pred func(e *Entry) bool) []*Entry {
	var out []*Entry
	for _, e := range r.Entries() {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Tagged is a predicate matching entries carrying all given tags.
func Tagged(tags ...string) func(e *Entry) bool {
	return func(e *Entry) bool { return e.HasTags(tags...) }
}

// Claim records that the singleton name has been constructed against this
// registry. A second claim fails with *DuplicateSingletonError.
func (r *Registry) Claim(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[name]; ok {
		return &DuplicateSingletonError{Name: name}
	}
	r.claims[name] = struct{}{}
	return nil
}
