package registry

import (
	"context"
	"fmt"

	"github.com/vk/zerosystem/internal/ctxlog"
)

// CollectorPrefix namespaces the entries collectors register themselves under.
const CollectorPrefix = "collector."

// Collector populates the registry with entries under a namespace prefix and
// supplies the construction policy for the entries it owns.
type Collector interface {
	Prefix() string
	// Collect adds the collector's entries through the given scope.
	Collect(ctx context.Context, s *Scope) error
	// Factory builds the instance of an entry owned by this collector.
	Factory(ctx context.Context, e *Entry, construct Constructor) (any, error)
}

// Refresher is implemented by collectors that can gain entries after their
// first run. Collect runs a stale collector again without a reset.
type Refresher interface {
	Stale() bool
}

// DefaultFactory builds an instance with the entry's default constructor.
// Collectors without a special construction policy delegate to it.
func DefaultFactory(_ context.Context, _ *Entry, construct Constructor) (any, error) {
	if construct == nil {
		return nil, ErrNoConstructor
	}
	return construct()
}

// Scope adds entries on behalf of one collector.
type Scope struct {
	reg       *Registry
	collector Collector
}

// Scope returns the scope through which c registers its entries.
func (r *Registry) Scope(c Collector) *Scope {
	return &Scope{reg: r, collector: c}
}

// Registry returns the underlying registry.
func (s *Scope) Registry() *Registry { return s.reg }

// Prefix returns the collector's namespace prefix.
func (s *Scope) Prefix() string { return s.collector.Prefix() }

// Name qualifies a local name with the collector prefix.
func (s *Scope) Name(local string) string {
	return s.collector.Prefix() + "." + local
}

// Add registers prefix.local, stamping collector ownership and the prefix tag.
func (s *Scope) Add(local string) *Entry {
	return s.reg.Add(s.Name(local)).
		SetCollector(CollectorPrefix + s.collector.Prefix()).
		SetTag(s.collector.Prefix())
}

// AddCollector registers c as the entry "collector.<prefix>" tagged
// "collector". The collector is not run until Collect.
func (r *Registry) AddCollector(c Collector) *Entry {
	return r.Set(CollectorPrefix+c.Prefix(), c).SetTag(TagCollector)
}

// collectorFor resolves a collector by its entry name.
func (r *Registry) collectorFor(name string) (Collector, bool) {
	e := r.Entry(name)
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	c, ok := e.object.(Collector)
	e.mu.RUnlock()
	return c, ok
}

// Collect runs every registered collector. Each collector runs at most once
// unless reset is given or it reports itself stale, so repeated passes only
// pick up collectors and definitions added since the last one.
func (r *Registry) Collect(ctx context.Context, reset bool) error {
	logger := ctxlog.FromContext(ctx)
	for _, e := range r.Finds(Tagged(TagCollector)) {
		c, ok := r.collectorFor(e.Name())
		if !ok {
			return fmt.Errorf("entry %q is tagged collector but holds no collector", e.Name())
		}

		r.mu.Lock()
		done := r.collected[e.Name()]
		r.collected[e.Name()] = true
		r.mu.Unlock()
		if done && !reset && !stale(c) {
			continue
		}

		logger.Debug("Running collector.", "collector", e.Name())
		if err := c.Collect(ctx, r.Scope(c)); err != nil {
			return fmt.Errorf("collector %s: %w", c.Prefix(), err)
		}
	}
	logger.Debug("Collection finished.", "entries", r.Len())
	return nil
}

func stale(c Collector) bool {
	rf, ok := c.(Refresher)
	return ok && rf.Stale()
}
