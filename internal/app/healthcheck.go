package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/zerosystem/internal/ctxlog"
)

// healthHandler reports OK, plus the number of connected peers once the
// protocol server is up.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)

	mounts := 0
	if a.server != nil {
		mounts = len(a.server.Mounts())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "mounts": mounts})
}

// newHealthCheckServer builds the health check HTTP server, or nil when it
// is disabled.
func (a *App) newHealthCheckServer() *http.Server {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring health check server.")
	if a.config.HealthcheckPort <= 0 {
		logger.Warn("Health check server not started: disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveHTTP runs srv until it is shut down. A graceful shutdown is not an
// error.
func serveHTTP(ctx context.Context, name string, srv *http.Server) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("HTTP server starting", "server", name, "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}
	return nil
}

// shutdownHTTP gracefully stops srv within five seconds.
func shutdownHTTP(ctx context.Context, name string, srv *http.Server) error {
	logger := ctxlog.FromContext(ctx)
	if srv == nil {
		logger.Debug("HTTP server was not running.", "server", name)
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...", "server", name)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "server", name, "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.", "server", name)
	return nil
}
