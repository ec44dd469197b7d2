// Package descriptor reads and writes the startup registration table: HCL
// files declaring components that are restored into the registry as entry
// descriptors.
//
//	component "service" "math" {
//	  tags       = ["base"]
//	  attributes = { path = "/math" }
//	  actions    = { add = "Add" }
//	  volatile   = false
//	  remote     = true
//	  local      = "service.math_local"
//	}
package descriptor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/fsutil"
	"github.com/vk/zerosystem/internal/registry"
)

// Extension of descriptor files.
const Extension = ".hcl"

// fileRoot decodes every top-level block of a descriptor file.
type fileRoot struct {
	Components []*componentBlock `hcl:"component,block"`
	Remain     hcl.Body          `hcl:",remain"`
}

type componentBlock struct {
	Prefix     string            `hcl:"prefix,label"`
	Name       string            `hcl:"name,label"`
	Tags       []string          `hcl:"tags,optional"`
	Attributes hcl.Expression    `hcl:"attributes,optional"`
	Actions    map[string]string `hcl:"actions,optional"`
	Volatile   bool              `hcl:"volatile,optional"`
	Remote     bool              `hcl:"remote,optional"`
	Local      string            `hcl:"local,optional"`
}

// Loader parses descriptor files. Each path is loaded once; later loads of
// the same path return nothing unless reset.
type Loader struct {
	mu     sync.Mutex
	loaded map[string]struct{}
}

// NewLoader creates a loader that has seen no paths.
func NewLoader() *Loader {
	return &Loader{loaded: make(map[string]struct{})}
}

// Load parses every descriptor file under paths, which may be files or
// directories.
func (l *Loader) Load(ctx context.Context, reset bool, paths ...string) ([]registry.Descriptor, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Descriptor loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, Extension)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if reset {
		l.loaded = make(map[string]struct{})
	}
	var fresh []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		if _, ok := l.loaded[abs]; ok {
			continue
		}
		l.loaded[abs] = struct{}{}
		fresh = append(fresh, f)
	}
	l.mu.Unlock()
	logger.Debug("Discovered descriptor files.", "count", len(files), "new", len(fresh))

	parser := hclparse.NewParser()
	var out []registry.Descriptor
	for _, file := range fresh {
		ds, err := parseFile(ctx, parser, file)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}

	logger.Debug("Descriptor loading complete.", "components", len(out))
	return out, nil
}

func parseFile(ctx context.Context, parser *hclparse.Parser, file string) ([]registry.Descriptor, error) {
	hclFile, diags := parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	out := make([]registry.Descriptor, 0, len(root.Components))
	for _, c := range root.Components {
		d, err := translate(ctx, c, file)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// translate converts a decoded block into a registry descriptor owned by
// the collector of its prefix. Blocks under the "remote" prefix are always
// remote.
func translate(ctx context.Context, c *componentBlock, file string) (registry.Descriptor, error) {
	name := c.Prefix + "." + c.Name
	d := registry.Descriptor{
		Name:      name,
		Collector: registry.CollectorPrefix + c.Prefix,
		Tags:      append([]string{c.Prefix}, c.Tags...),
		Actions:   c.Actions,
		Volatile:  c.Volatile,
		Remote:    c.Remote || c.Prefix == registry.TagRemote,
		Local:     c.Local,
		File:      file,
	}

	if isExprDefined(ctx, c.Attributes, "attributes") {
		val, diags := c.Attributes.Value(nil)
		if diags.HasErrors() {
			return d, fmt.Errorf("invalid attributes for component '%s': %w", name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return d, fmt.Errorf("component '%s': %w", name, err)
		}
		if native != nil {
			attrs, ok := native.(map[string]any)
			if !ok {
				return d, fmt.Errorf("component '%s': attributes must be an object, got %s", name, val.Type().FriendlyName())
			}
			d.Attributes = attrs
		}
	}
	return d, nil
}

// isExprDefined checks if an HCL expression was actually present in the source
// code. Omitted optional attributes decode to zero-width expressions, so a nil
// check alone is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", r.String(),
		"is_defined", defined,
	)
	return defined
}
