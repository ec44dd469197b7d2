package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/remote"
	"github.com/vk/zerosystem/internal/server"
	"github.com/vk/zerosystem/internal/socketio"
	"github.com/vk/zerosystem/internal/telemetry"
	"github.com/vk/zerosystem/internal/transport"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SetupSocket is the setup phase run once the protocol server exists. Its
// argument is the *server.Server.
const SetupSocket = "socket"

// ServiceName identifies the process in traces.
const ServiceName = "zerosys"

// Start boots the application and creates the protocol server with the
// remote capability handlers and the controller routes installed. It does
// not accept connections; attach an acceptor to the returned server.
func (a *App) Start(ctx context.Context, tp trace.TracerProvider) (*server.Server, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Start method started.")

	if err := a.root.Boot(ctx); err != nil {
		return nil, err
	}
	if err := a.root.Init(ctx); err != nil {
		return nil, err
	}

	var opts []server.Option
	if tp != nil {
		opts = append(opts, server.WithTracerProvider(tp))
	}
	srv, err := server.New(ctx, a.registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol server: %w", err)
	}
	a.server = srv

	remote.Install(srv.Chain(), a.registry, RemotePriority)
	if err := a.installRoutes(ctx, srv); err != nil {
		return nil, err
	}
	if err := a.root.Setup(ctx, SetupSocket, srv); err != nil {
		return nil, err
	}

	a.logger.Info("Protocol server ready.", "events", srv.Chain().Events(), "remote", len(remote.Describe(a.registry)))
	return srv, nil
}

// Run starts the application and serves socket.io on the configured address
// until ctx is cancelled or a server fails.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	tp, shutdownTracing, err := telemetry.Setup(ctx, ServiceName, a.config.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Tracing shutdown failed.", "error", err)
		}
	}()

	srv, err := a.Start(ctx, tp)
	if err != nil {
		return err
	}

	acceptor := socketio.NewAcceptor(ctx)
	srv.Attach(acceptor)

	mux := http.NewServeMux()
	mux.Handle(socketio.Path, acceptor.Handler())
	a.httpServer = &http.Server{Addr: a.config.Addr, Handler: mux}
	health := a.newHealthCheckServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, "socket", a.httpServer) })
	if health != nil {
		g.Go(func() error { return serveHTTP(gctx, "health", health) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(gctx, acceptor, srv, health)
	})

	a.logger.Info("Serving.", "address", a.config.Addr)
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) shutdown(ctx context.Context, acceptor *socketio.Acceptor, srv *server.Server, health *http.Server) error {
	errs := []error{
		shutdownHTTP(ctx, "socket", a.httpServer),
		shutdownHTTP(ctx, "health", health),
		srv.Close(),
	}
	acceptor.Close()
	return errors.Join(errs...)
}

// Serve attaches acceptor to an already started server. It is the seam for
// transports other than the built-in socket.io listener.
func (a *App) Serve(acceptor transport.Acceptor) error {
	if a.server == nil {
		return errors.New("app not started")
	}
	a.server.Attach(acceptor)
	return nil
}
