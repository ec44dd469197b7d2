package descriptor

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/zerosystem/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Write renders descriptors as component blocks. Tags implied by the
// block (its prefix, and "remote" for remote components) are omitted so the
// output loads back to the same descriptors.
func Write(w io.Writer, ds []registry.Descriptor) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for i, d := range ds {
		prefix, local, err := split(d)
		if err != nil {
			return err
		}
		if i > 0 {
			body.AppendNewline()
		}
		block := body.AppendNewBlock("component", []string{prefix, local})
		b := block.Body()

		tags := slices.DeleteFunc(slices.Clone(d.Tags), func(t string) bool {
			return t == prefix || (d.Remote && t == registry.TagRemote)
		})
		if len(tags) > 0 {
			vals := make([]cty.Value, len(tags))
			for i, t := range tags {
				vals[i] = cty.StringVal(t)
			}
			b.SetAttributeValue("tags", cty.ListVal(vals))
		}
		if len(d.Attributes) > 0 {
			val, err := nativeToCty(d.Attributes)
			if err != nil {
				return fmt.Errorf("component '%s': %w", d.Name, err)
			}
			b.SetAttributeValue("attributes", val)
		}
		actions := make(map[string]string, len(d.Actions))
		for name, method := range d.Actions {
			if method != "" {
				actions[name] = method
			}
		}
		if len(actions) > 0 {
			val, err := nativeToCty(actions)
			if err != nil {
				return err
			}
			b.SetAttributeValue("actions", val)
		}
		if d.Volatile {
			b.SetAttributeValue("volatile", cty.True)
		}
		if d.Remote {
			b.SetAttributeValue("remote", cty.True)
		}
		if d.Local != "" {
			b.SetAttributeValue("local", cty.StringVal(d.Local))
		}
	}

	_, err := w.Write(f.Bytes())
	return err
}

// split derives the block labels from the owning collector, falling back to
// the first dot of the name.
func split(d registry.Descriptor) (prefix, local string, err error) {
	if c, ok := strings.CutPrefix(d.Collector, registry.CollectorPrefix); ok && c != "" {
		if rest, ok := strings.CutPrefix(d.Name, c+"."); ok && rest != "" {
			return c, rest, nil
		}
	}
	prefix, local, ok := strings.Cut(d.Name, ".")
	if !ok || prefix == "" || local == "" {
		return "", "", fmt.Errorf("component name '%s' has no prefix", d.Name)
	}
	return prefix, local, nil
}
