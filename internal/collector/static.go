// Package collector provides the concrete collectors that populate a
// registry from descriptor lists: generic static lists, controllers with
// routes, modules, services and remote capabilities.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/zerosystem/internal/registry"
)

// RootName is the registry entry holding the application root.
const RootName = "root"

// RootConstructor builds an instance that needs the application root.
type RootConstructor func(root any) (any, error)

// Definition describes one component a collector registers.
type Definition struct {
	Name      string
	Construct registry.Constructor
	// WithRoot takes precedence over Construct and receives the resolved
	// application root.
	WithRoot   RootConstructor
	Tags       []string
	Attributes map[string]any
	// Actions maps action names to method names on the instance.
	Actions  map[string]string
	Funcs    map[string]registry.ActionFunc
	Volatile bool
	Remote   bool
	Local    string
	File     string
}

// Static registers a fixed list of definitions under its prefix.
type Static struct {
	prefix string
	remote bool

	mu       sync.Mutex
	defs     []Definition
	withRoot map[string]RootConstructor
	// next indexes the first definition added after the last run.
	next int
	ran  bool
}

// NewStatic creates a collector for prefix.
func NewStatic(prefix string, defs ...Definition) *Static {
	return &Static{
		prefix:   prefix,
		defs:     defs,
		withRoot: make(map[string]RootConstructor),
	}
}

// NewModule creates the "module" collector. Modules built with WithRoot get
// the application root.
func NewModule(defs ...Definition) *Static {
	return NewStatic(registry.TagModule, defs...)
}

// NewService creates the "service" collector.
func NewService(defs ...Definition) *Static {
	return NewStatic("service", defs...)
}

// NewRemote creates the "remote" collector. Every entry it adds is flagged
// remote.
func NewRemote(defs ...Definition) *Static {
	s := NewStatic(registry.TagRemote, defs...)
	s.remote = true
	return s
}

// Define appends definitions. They are registered on the next Collect, also
// when the collector already ran.
func (s *Static) Define(defs ...Definition) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, defs...)
	return s
}

// Stale implements registry.Refresher. It reports definitions added since
// the last run.
func (s *Static) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ran && s.next < len(s.defs)
}

// Prefix implements registry.Collector.
func (s *Static) Prefix() string { return s.prefix }

// Collect implements registry.Collector.
func (s *Static) Collect(_ context.Context, scope *registry.Scope) error {
	s.mu.Lock()
	start := 0
	if s.ran && s.next < len(s.defs) {
		// Only the definitions added since the last run.
		start = s.next
	}
	defs := append([]Definition(nil), s.defs[start:]...)
	s.ran, s.next = true, len(s.defs)
	s.mu.Unlock()

	for i, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("definition %d under '%s' has no name", start+i, s.prefix)
		}
		e := apply(scope.Add(d.Name), d)
		if s.remote || d.Remote {
			e.SetRemote(d.Local)
		}
		if d.WithRoot != nil {
			s.mu.Lock()
			s.withRoot[e.Name()] = d.WithRoot
			s.mu.Unlock()
		}
	}
	return nil
}

// Factory implements registry.Collector.
func (s *Static) Factory(ctx context.Context, e *registry.Entry, construct registry.Constructor) (any, error) {
	s.mu.Lock()
	build := s.withRoot[e.Name()]
	s.mu.Unlock()
	if build == nil {
		return registry.DefaultFactory(ctx, e, construct)
	}

	root, err := e.Registry().Get(ctx, RootName)
	if err != nil {
		return nil, fmt.Errorf("resolving root for %s: %w", e.Name(), err)
	}
	return build(root)
}

func apply(e *registry.Entry, d Definition) *registry.Entry {
	e.SetConstruct(d.Construct)
	for _, tag := range d.Tags {
		e.SetTag(tag)
	}
	for _, k := range sortedKeys(d.Attributes) {
		e.SetAttribute(k, d.Attributes[k])
	}
	for _, name := range sortedKeys(d.Actions) {
		e.AddMethodAction(name, d.Actions[name])
	}
	for _, name := range sortedKeys(d.Funcs) {
		e.AddAction(name, d.Funcs[name])
	}
	if d.Volatile {
		e.SetVolatile(true)
	}
	if d.File != "" {
		e.SetFile(d.File)
	}
	return e
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
