package app

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/vk/zerosystem/internal/descriptor"
	"github.com/vk/zerosystem/internal/registry"
)

// WriteSnapshot renders the registry as component descriptors. Only entries
// under a registered collector prefix are written, so the output loads back
// as a descriptor file.
func (a *App) WriteSnapshot(w io.Writer) error {
	var out []registry.Descriptor
	for _, d := range a.registry.Snapshot() {
		if slices.Contains(d.Tags, registry.TagCollector) {
			continue
		}
		prefix, _, ok := strings.Cut(d.Name, ".")
		if !ok || a.registry.Entry(registry.CollectorPrefix+prefix) == nil {
			continue
		}
		out = append(out, d)
	}
	a.logger.Debug("Writing snapshot.", "components", len(out))
	return descriptor.Write(w, out)
}

// SaveSnapshot writes the snapshot to path.
func (a *App) SaveSnapshot(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return a.WriteSnapshot(f)
}
