package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
)

// Constructor builds a default instance of a component.
type Constructor func() (any, error)

// Factory builds the instance for an entry. construct is the entry's default
// constructor and may be nil.
type Factory func(ctx context.Context, e *Entry, construct Constructor) (any, error)

// ActionFunc implements a named capability against a resolved instance.
type ActionFunc func(ctx context.Context, object any, args ...any) (any, error)

// Action is an ActionFunc bound to an instance.
type Action func(ctx context.Context, args ...any) (any, error)

// actionDef is either a method name resolved against the instance or a
// direct function.
type actionDef struct {
	method string
	fn     ActionFunc
}

// Entry is one named, taggable, lazily resolved component descriptor.
type Entry struct {
	reg  *Registry
	name string

	// mu guards the fields below; resolveMu serialises resolution so a
	// factory may still read this entry's metadata.
	mu         sync.RWMutex
	resolveMu  sync.Mutex
	tags       []string
	attributes map[string]any
	actions    map[string]actionDef
	construct  Constructor
	factory    Factory
	collector  string
	volatile   bool
	remote     bool
	local      string
	file       string
	object     any
	resolved   bool
}

// Name returns the entry's unique key.
func (e *Entry) Name() string { return e.name }

// Registry returns the registry owning this entry.
func (e *Entry) Registry() *Registry { return e.reg }

// SetTag adds tag to the entry's tag set.
func (e *Entry) SetTag(tag string) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slices.Contains(e.tags, tag) {
		e.tags = append(e.tags, tag)
	}
	return e
}

// HasTag reports whether tag is set.
func (e *Entry) HasTag(tag string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Contains(e.tags, tag)
}

// HasTags reports whether every given tag is set.
func (e *Entry) HasTags(tags ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, tag := range tags {
		if !slices.Contains(e.tags, tag) {
			return false
		}
	}
	return true
}

// Tags returns a copy of the tag set.
func (e *Entry) Tags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.tags)
}

// SetAttribute stores free-form metadata under key.
func (e *Entry) SetAttribute(key string, value any) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attributes == nil {
		e.attributes = make(map[string]any)
	}
	e.attributes[key] = value
	return e
}

// Attribute returns the value stored under key, or nil.
func (e *Entry) Attribute(key string) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attributes[key]
}

// StringAttribute returns the attribute under key when it is a string.
func (e *Entry) StringAttribute(key string) (string, bool) {
	s, ok := e.Attribute(key).(string)
	return s, ok
}

// Attributes returns a shallow copy of all attributes.
func (e *Entry) Attributes() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// SetConstruct sets the default constructor. A nil constructor is ignored.
func (e *Entry) SetConstruct(construct Constructor) *Entry {
	if construct == nil {
		return e
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.construct = construct
	return e
}

// SetFactory sets an explicit factory. With reset the cached instance is
// dropped so the next lookup uses the new factory.
func (e *Entry) SetFactory(factory Factory, reset bool) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factory = factory
	if reset {
		e.object = nil
		e.resolved = false
	}
	return e
}

// SetCollector records the name of the owning collector's entry.
func (e *Entry) SetCollector(name string) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collector = name
	return e
}

// CollectorName returns the owning collector's entry name, or "".
func (e *Entry) CollectorName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collector
}

// SetVolatile marks the entry as non-cacheable.
func (e *Entry) SetVolatile(volatile bool) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volatile = volatile
	return e
}

// Volatile reports whether instances are discarded after each retrieval.
func (e *Entry) Volatile() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volatile
}

// SetRemote marks the entry as a capability served to remote peers, tags it
// "remote" and optionally records the name of a local backing entry.
func (e *Entry) SetRemote(local string) *Entry {
	e.mu.Lock()
	e.remote = true
	e.local = local
	e.mu.Unlock()
	return e.SetTag(TagRemote)
}

// Remote reports whether the entry is remote and its local alias.
func (e *Entry) Remote() (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.remote, e.local
}

// SetFile records where the entry was declared.
func (e *Entry) SetFile(file string) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.file = file
	return e
}

// File returns where the entry was declared, if known.
func (e *Entry) File() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file
}

// Resolved reports whether an instance is currently cached.
func (e *Entry) Resolved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolved
}

// setObject stores a pre-built instance.
func (e *Entry) setObject(object any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.object = object
	e.resolved = object != nil
}

// Object resolves and returns the entry's instance.
//
// Resolution order: the entry's own factory, then the owning collector's
// factory, then the default constructor. The result is cached unless the
// entry is volatile, in which case it is evicted after this read.
func (e *Entry) Object(ctx context.Context) (any, error) {
	e.resolveMu.Lock()
	defer e.resolveMu.Unlock()

	e.mu.RLock()
	object, resolved := e.object, e.resolved
	e.mu.RUnlock()

	if !resolved {
		var err error
		object, err = e.resolve(ctx)
		if err != nil {
			return nil, &ResolveError{Name: e.name, Err: err}
		}
		e.setObject(object)
	}

	if e.Volatile() {
		e.setObject(nil)
	}
	return object, nil
}

func (e *Entry) resolve(ctx context.Context) (any, error) {
	e.mu.RLock()
	factory, collector, construct := e.factory, e.collector, e.construct
	e.mu.RUnlock()

	logger := ctxlog.FromContext(ctx)
	switch {
	case factory != nil:
		logger.Debug("Resolving entry with own factory.", "name", e.name)
		return factory(ctx, e, construct)
	case collector != "":
		c, ok := e.reg.collectorFor(collector)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCollectorMissing, collector)
		}
		logger.Debug("Resolving entry with collector factory.", "name", e.name, "collector", collector)
		return c.Factory(ctx, e, construct)
	case construct != nil:
		logger.Debug("Resolving entry with default constructor.", "name", e.name)
		return construct()
	default:
		return nil, ErrNoConstructor
	}
}

// resolvable reports whether the entry has any way to produce an instance.
func (e *Entry) resolvable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolved || e.factory != nil || e.collector != "" || e.construct != nil
}

// AddAction binds a named capability to a function.
func (e *Entry) AddAction(name string, fn ActionFunc) *Entry {
	return e.addAction(name, actionDef{fn: fn})
}

// AddMethodAction binds a named capability to a method of the instance.
func (e *Entry) AddMethodAction(name, method string) *Entry {
	return e.addAction(name, actionDef{method: method})
}

func (e *Entry) addAction(name string, def actionDef) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.actions == nil {
		e.actions = make(map[string]actionDef)
	}
	e.actions[name] = def
	return e
}

// HasAction reports whether an action is defined under name.
func (e *Entry) HasAction(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.actions[name]
	return ok
}

// ActionNames returns the defined action names in sorted order.
func (e *Entry) ActionNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.actions))
	for name := range e.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action resolves the instance and returns the named capability bound to it.
func (e *Entry) Action(ctx context.Context, name string) (Action, error) {
	if !e.HasAction(name) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoAction, name, e.name)
	}
	object, err := e.Object(ctx)
	if err != nil {
		return nil, err
	}
	return e.BindAction(name, object)
}

// BindAction binds the named capability to object instead of the entry's own
// instance. Remote entries use it to run their actions on a local alias.
func (e *Entry) BindAction(name string, object any) (Action, error) {
	e.mu.RLock()
	def, ok := e.actions[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoAction, name, e.name)
	}

	if def.fn != nil {
		fn := def.fn
		return func(ctx context.Context, args ...any) (any, error) {
			return fn(ctx, object, args...)
		}, nil
	}
	return bindMethod(object, def.method)
}
