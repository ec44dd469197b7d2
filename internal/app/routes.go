package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vk/zerosystem/internal/collector"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/registry"
	"github.com/vk/zerosystem/internal/remote"
	"github.com/vk/zerosystem/internal/server"
)

// Route events of the built-in system controller.
const (
	EventEcho   = "echo"
	EventPing   = "system:ping"
	EventStatus = "system:status"
)

// Chain priorities. Remote capability handlers run before controller routes.
const (
	RemotePriority = 0
	RoutePriority  = 10
)

// systemController serves the built-in routes.
type systemController struct {
	started time.Time
	reg     *registry.Registry
}

// Echo returns a single argument unchanged and several as a list.
func (c *systemController) Echo(args ...any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	}
	return args
}

func (c *systemController) Ping() string { return "pong" }

// Status summarises the running instance.
func (c *systemController) Status(ctx context.Context) map[string]any {
	srv, _ := c.reg.Get(ctx, server.Name)
	mounts := 0
	if s, ok := srv.(*server.Server); ok {
		mounts = len(s.Mounts())
	}
	return map[string]any{
		"uptime_ms": time.Since(c.started).Milliseconds(),
		"entries":   c.reg.Len(),
		"mounts":    mounts,
		"remote":    len(remote.Describe(c.reg)),
	}
}

func (a *App) defineSystemController() {
	reg := a.registry
	a.controllers.
		Base("system", func() (any, error) {
			return &systemController{started: time.Now(), reg: reg}, nil
		}).
		AddRoute("system", "echo", EventEcho, "Echo").
		AddRoute("system", "ping", EventPing, "Ping").
		AddRoute("system", "status", EventStatus, "Status")
}

// installRoutes serves every controller route on the event named by its path
// attribute. Array payloads are spread over the route's parameters.
func (a *App) installRoutes(ctx context.Context, srv *server.Server) error {
	logger := ctxlog.FromContext(ctx)
	for _, e := range collector.Routes(a.registry) {
		path, ok := e.StringAttribute(collector.AttrPath)
		if !ok || path == "" {
			return fmt.Errorf("route %s has no path", e.Name())
		}
		route := strings.TrimPrefix(e.Name(), collector.ControllerPrefix+".")
		srv.AddHandler(path, routeHandler(a.registry, route), RoutePriority)
		logger.Debug("Installed route.", "route", route, "event", path)
	}
	return nil
}

func routeHandler(reg *registry.Registry, route string) protocol.Handler {
	return func(ctx context.Context, req *protocol.Request, _ *protocol.Mount, answer protocol.Answer) error {
		action, err := collector.Route(ctx, reg, route)
		if err != nil {
			return err
		}
		out, err := action(ctx, spread(req.Data)...)
		if err != nil {
			return err
		}
		answer(out)
		return nil
	}
}

// spread turns request data into action arguments: arrays are spread, nil
// is no argument and anything else is a single one.
func spread(data any) []any {
	switch v := data.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}
