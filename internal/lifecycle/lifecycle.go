// Package lifecycle provides the application root and its phases. Modules
// take part in a phase by implementing Booter, Initer or Setupper, or by
// registering a callback on the root.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vk/zerosystem/internal/collector"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/registry"
)

// Phase is a step of the application lifecycle.
type Phase int

const (
	Boot Phase = iota
	Init
	Setup
)

func (p Phase) String() string {
	switch p {
	case Boot:
		return "boot"
	case Init:
		return "init"
	case Setup:
		return "setup"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Booter is implemented by modules that act during Boot.
type Booter interface {
	Boot(ctx context.Context, root *Root) error
}

// Initer is implemented by modules that act during Init.
type Initer interface {
	Init(ctx context.Context, root *Root) error
}

// Setupper is implemented by modules taking part in named setup phases.
type Setupper interface {
	Setup(ctx context.Context, root *Root, name string, arg any) error
}

// Func is a phase callback. arg is the setup argument; it is nil for Boot
// and Init.
type Func func(ctx context.Context, root *Root, arg any) error

type hookKey struct {
	phase Phase
	name  string
}

// Root is the application root: it owns the registry and drives the
// lifecycle of every entry tagged "module".
type Root struct {
	reg *registry.Registry
	dir string

	mu    sync.RWMutex
	hooks map[hookKey][]Func
}

// New creates the root for dir and registers it as "root". Only one root may
// exist per registry.
func New(reg *registry.Registry, dir string) (*Root, error) {
	if err := reg.Claim(collector.RootName); err != nil {
		return nil, err
	}
	r := &Root{reg: reg, dir: dir, hooks: make(map[hookKey][]Func)}
	reg.Set(collector.RootName, r)
	return r, nil
}

// Registry returns the root's registry.
func (r *Root) Registry() *registry.Registry { return r.reg }

// Path joins elem onto the root directory.
func (r *Root) Path(elem ...string) string {
	return filepath.Join(append([]string{r.dir}, elem...)...)
}

// On registers fn for Boot or Init.
func (r *Root) On(phase Phase, fn Func) *Root {
	return r.on(hookKey{phase: phase}, fn)
}

// OnSetup registers fn for the setup phase name.
func (r *Root) OnSetup(name string, fn Func) *Root {
	return r.on(hookKey{phase: Setup, name: name}, fn)
}

func (r *Root) on(key hookKey, fn Func) *Root {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[key] = append(r.hooks[key], fn)
	return r
}

// Boot collects all pending entries and runs the Boot phase.
func (r *Root) Boot(ctx context.Context) error {
	if err := r.reg.Collect(ctx, false); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	return r.run(ctx, hookKey{phase: Boot}, nil, func(ctx context.Context, obj any) (bool, error) {
		b, ok := obj.(Booter)
		if !ok {
			return false, nil
		}
		return true, b.Boot(ctx, r)
	})
}

// Init collects entries added during Boot and runs the Init phase.
func (r *Root) Init(ctx context.Context) error {
	if err := r.reg.Collect(ctx, false); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return r.run(ctx, hookKey{phase: Init}, nil, func(ctx context.Context, obj any) (bool, error) {
		i, ok := obj.(Initer)
		if !ok {
			return false, nil
		}
		return true, i.Init(ctx, r)
	})
}

// Setup runs the setup phase name with arg.
func (r *Root) Setup(ctx context.Context, name string, arg any) error {
	return r.run(ctx, hookKey{phase: Setup, name: name}, arg, func(ctx context.Context, obj any) (bool, error) {
		s, ok := obj.(Setupper)
		if !ok {
			return false, nil
		}
		return true, s.Setup(ctx, r, name, arg)
	})
}

// run calls each module's phase method, then the registered callbacks. All
// failures are collected.
func (r *Root) run(ctx context.Context, key hookKey, arg any, call func(context.Context, any) (bool, error)) error {
	logger := ctxlog.FromContext(ctx).With("phase", key.phase.String())
	if key.name != "" {
		logger = logger.With("setup", key.name)
	}

	var errs []error
	for _, e := range r.reg.Finds(registry.Tagged(registry.TagModule)) {
		obj, err := e.Object(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		called, err := call(ctx, obj)
		if called {
			logger.Debug("Ran module phase.", "module", e.Name())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", e.Name(), err))
		}
	}

	r.mu.RLock()
	callbacks := append([]Func(nil), r.hooks[key]...)
	r.mu.RUnlock()
	for _, fn := range callbacks {
		if err := fn(ctx, r, arg); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s phase failed: %w", key.phase, err)
	}
	logger.Debug("Phase complete.")
	return nil
}
