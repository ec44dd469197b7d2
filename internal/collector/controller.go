package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/zerosystem/internal/registry"
)

// ControllerPrefix is the namespace of controllers and their routes.
const ControllerPrefix = "controller"

// Attribute keys set on route entries.
const (
	AttrBase = "base"
	AttrPath = "path"
)

// RouteAction is the action name bound on every route entry.
const RouteAction = "route"

type controllerDef struct {
	id        string
	construct registry.Constructor
	routes    []routeDef
}

type routeDef struct {
	name   string
	path   string
	method string
	fn     registry.ActionFunc
}

// Controller registers controllers and their routes. A controller "<id>" is
// the entry "controller.<id>" tagged base; each route "<name>" is the entry
// "controller.<id>.<name>" tagged route whose instance is the controller
// singleton itself.
type Controller struct {
	mu    sync.Mutex
	defs  []*controllerDef
	index map[string]*controllerDef
}

// NewController creates an empty controller collector.
func NewController() *Controller {
	return &Controller{index: make(map[string]*controllerDef)}
}

// Base declares the controller id built by construct.
func (c *Controller) Base(id string, construct registry.Constructor) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.def(id).construct = construct
	return c
}

// AddRoute declares a route on controller id served by the instance method
// named method. An empty method defaults to the route name.
func (c *Controller) AddRoute(id, name, path, method string) *Controller {
	if method == "" {
		method = name
	}
	return c.addRoute(id, routeDef{name: name, path: path, method: method})
}

// AddRouteFunc declares a route served by fn, which receives the controller.
func (c *Controller) AddRouteFunc(id, name, path string, fn registry.ActionFunc) *Controller {
	return c.addRoute(id, routeDef{name: name, path: path, fn: fn})
}

func (c *Controller) addRoute(id string, r routeDef) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.def(id)
	d.routes = append(d.routes, r)
	return c
}

// def returns the definition for id, creating it. Callers hold c.mu.
func (c *Controller) def(id string) *controllerDef {
	if d, ok := c.index[id]; ok {
		return d
	}
	d := &controllerDef{id: id}
	c.index[id] = d
	c.defs = append(c.defs, d)
	return d
}

// Prefix implements registry.Collector.
func (c *Controller) Prefix() string { return ControllerPrefix }

// Collect implements registry.Collector.
func (c *Controller) Collect(_ context.Context, scope *registry.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range c.defs {
		if d.construct == nil {
			return fmt.Errorf("controller '%s' has no constructor", d.id)
		}
		scope.Add(d.id).SetTag(registry.TagBase).SetConstruct(d.construct)

		for _, r := range d.routes {
			e := scope.Add(d.id+"."+r.name).
				SetAttribute(AttrBase, scope.Name(d.id)).
				SetAttribute(AttrPath, r.path).
				SetTag(registry.TagRoute)
			if r.fn != nil {
				e.AddAction(RouteAction, r.fn)
			} else {
				e.AddMethodAction(RouteAction, r.method)
			}
		}
	}
	return nil
}

// Factory implements registry.Collector. Base entries get a new controller;
// route entries resolve to their base controller's instance.
func (c *Controller) Factory(ctx context.Context, e *registry.Entry, construct registry.Constructor) (any, error) {
	base, ok := e.StringAttribute(AttrBase)
	if !ok {
		return registry.DefaultFactory(ctx, e, construct)
	}
	obj, err := e.Registry().Get(ctx, base)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("route %s: base controller %s is not registered", e.Name(), base)
	}
	return obj, nil
}

// Route returns the route action for "<id>.<name>" bound to its controller.
func Route(ctx context.Context, reg *registry.Registry, route string) (registry.Action, error) {
	e := reg.Entry(ControllerPrefix + "." + route)
	if e == nil || !e.HasTag(registry.TagRoute) {
		return nil, fmt.Errorf("%w: route %s", registry.ErrNoAction, route)
	}
	return e.Action(ctx, RouteAction)
}

// Routes lists every registered route entry in registration order.
func Routes(reg *registry.Registry) []*registry.Entry {
	return reg.Finds(registry.Tagged(ControllerPrefix, registry.TagRoute))
}
