package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/vk/zerosystem/internal/collector"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/descriptor"
	"github.com/vk/zerosystem/internal/lifecycle"
	"github.com/vk/zerosystem/internal/registry"
	"github.com/vk/zerosystem/internal/server"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx      context.Context
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	root     *lifecycle.Root

	services    *collector.Static
	remotes     *collector.Static
	controllers *collector.Controller

	server     *server.Server
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry,
// with every collector run once and the registry validated. Descriptor and
// validation failures are programmer or operator errors and panic.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		ctx:         ctx,
		outW:        outW,
		logger:      logger,
		config:      cfg,
		registry:    registry.New(),
		services:    collector.NewService(),
		remotes:     collector.NewRemote(),
		controllers: collector.NewController(),
	}

	dir := "."
	if cfg.DescriptorPath != "" {
		dir = filepath.Dir(cfg.DescriptorPath)
	}
	root, err := lifecycle.New(a.registry, dir)
	if err != nil {
		panic(fmt.Errorf("failed to create application root: %w", err))
	}
	a.root = root

	a.registry.AddCollector(collector.NewModule())
	a.registry.AddCollector(a.services)
	a.registry.AddCollector(a.remotes)
	a.registry.AddCollector(a.controllers)
	a.defineSystemController()
	if cfg.DescriptorPath != "" {
		a.registry.AddCollector(descriptor.NewCollector(cfg.DescriptorPath))
	}
	logger.Debug("Collectors registered.")

	if len(modules) == 0 {
		modules = coreModules(a)
	}
	a.registry.Register(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := a.registry.Collect(ctx, false); err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Registry populated from collectors and descriptors.", "entries", a.registry.Len())

	if err := a.registry.Validate(ctx); err != nil {
		// A mismatch between code and descriptors, so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return a
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Root returns the application root.
func (a *App) Root() *lifecycle.Root {
	return a.root
}

// Services returns the service collector so embedders can define services
// before Start.
func (a *App) Services() *collector.Static {
	return a.services
}

// Remotes returns the remote capability collector.
func (a *App) Remotes() *collector.Static {
	return a.remotes
}

// Controllers returns the controller collector.
func (a *App) Controllers() *collector.Controller {
	return a.controllers
}

// Server returns the protocol server once Start has run.
func (a *App) Server() *server.Server {
	return a.server
}
