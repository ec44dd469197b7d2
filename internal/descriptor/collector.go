package descriptor

import (
	"context"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/registry"
)

// CollectorPrefix is the namespace of the descriptor collector.
const CollectorPrefix = "descriptor"

// Collector restores descriptor files into the registry it runs in. The
// first pass loads every file; a pass forced by a collection reset reloads
// them all.
type Collector struct {
	loader *Loader
	paths  []string

	mu  sync.Mutex
	ran bool
}

// NewCollector creates a collector for paths, which may be files or
// directories.
func NewCollector(paths ...string) *Collector {
	return &Collector{loader: NewLoader(), paths: paths}
}

// Prefix implements registry.Collector.
func (c *Collector) Prefix() string { return CollectorPrefix }

// Collect implements registry.Collector. Restored entries keep the collector
// named in their descriptor, so they resolve through their prefix's
// collector.
func (c *Collector) Collect(ctx context.Context, scope *registry.Scope) error {
	c.mu.Lock()
	reset := c.ran
	c.ran = true
	c.mu.Unlock()

	ds, err := c.loader.Load(ctx, reset, c.paths...)
	if err != nil {
		return err
	}
	scope.Registry().Restore(ds)
	ctxlog.FromContext(ctx).Debug("Restored descriptors.", "count", len(ds), "reset", reset)
	return nil
}

// Factory implements registry.Collector.
func (c *Collector) Factory(ctx context.Context, e *registry.Entry, construct registry.Constructor) (any, error) {
	return registry.DefaultFactory(ctx, e, construct)
}
