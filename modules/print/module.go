// Package print provides the "service.print" component: it writes key/value
// maps to the process output and echoes values back to remote callers.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/registry"
)

// Name is the registry entry of the printer.
const Name = "service.print"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives printed lines. Defaults to os.Stdout.
	Out io.Writer
}

// Printer is the component instance.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

// Print writes values sorted by key and returns the written lines.
func (p *Printer) Print(ctx context.Context, values map[string]string) []string {
	ctxlog.FromContext(ctx).Info("Printing input", "keys", len(values))

	if values == nil {
		p.write("      (null)")
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		line := fmt.Sprintf("      %s = %q", k, values[k])
		p.write(line)
		lines = append(lines, line)
	}
	return lines
}

// Echo returns its argument unchanged.
func (p *Printer) Echo(v any) any { return v }

func (p *Printer) write(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Register adds the printer and exposes its actions to remote peers.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	r.Add(Name).
		SetTag("service").
		SetConstruct(func() (any, error) { return NewPrinter(out), nil }).
		AddMethodAction("print", "Print").
		AddMethodAction("echo", "Echo").
		SetRemote("")
}
