package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/zerosystem/internal/ctxlog"
)

// Validate checks that every entry can be resolved without constructing
// anything: each needs a cached instance, a factory, an owning collector that
// is registered, or a default constructor. Remote entries pointing at a local
// alias must name an existing entry.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, e := range r.Entries() {
		if !e.resolvable() {
			errs = append(errs, fmt.Sprintf("entry '%s': no instance, factory, collector or constructor", e.Name()))
			continue
		}
		if name := e.CollectorName(); name != "" {
			if _, ok := r.collectorFor(name); !ok {
				errs = append(errs, fmt.Sprintf("entry '%s': owning collector '%s' is not registered", e.Name(), name))
			}
		}
		if remote, local := e.Remote(); remote && local != "" && r.Entry(local) == nil {
			errs = append(errs, fmt.Sprintf("entry '%s': local alias '%s' is not registered", e.Name(), local))
		}
		if e.Volatile() && e.HasTag(TagCollector) {
			logger.Warn("Collector entry is marked volatile; collectors are always cached.", "entry", e.Name())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
