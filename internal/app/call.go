package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/zerosystem/internal/client"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/remote"
	"github.com/vk/zerosystem/internal/server"
	"github.com/vk/zerosystem/internal/sessionstore"
	"github.com/vk/zerosystem/internal/sessionstore/sqlite"
	"github.com/vk/zerosystem/internal/socketio"
	"github.com/vk/zerosystem/internal/transport"
)

// RedialDelay is the pause between reconnect attempts in watch mode.
var RedialDelay = time.Second

// Dialer opens the client connection for call mode.
type Dialer func(ctx context.Context, url string) (transport.Conn, error)

// SocketIODialer dials with the socket.io client.
func SocketIODialer(ctx context.Context, url string) (transport.Conn, error) {
	return socketio.Dial(ctx, url, socketio.DialOptions{})
}

// Call runs one client operation against the server at cfg.Call.URL and
// writes its JSON output to out. The session ident persists in the
// configured session database.
func Call(ctx context.Context, cfg *Config, dial Dialer, out io.Writer) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, out)
	ctx = ctxlog.WithLogger(ctx, logger)

	var data any
	if cfg.Call.Data != "" {
		if err := json.Unmarshal([]byte(cfg.Call.Data), &data); err != nil {
			return fmt.Errorf("invalid request data: %w", err)
		}
	}

	store, closeStore, err := openSessionStore(ctx, cfg.SessionDB)
	if err != nil {
		return err
	}
	defer closeStore()

	conn, err := dial(ctx, cfg.Call.URL)
	if err != nil {
		return err
	}
	c, err := client.New(ctx, conn, store, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	logger.Debug("Client connected.", "url", cfg.Call.URL, "session", c.Session().Ident)

	var res any
	switch {
	case cfg.Call.Watch:
		return watch(ctx, logger, c, conn, func(ctx context.Context) (transport.Conn, error) {
			return dial(ctx, cfg.Call.URL)
		}, out)
	case cfg.Call.Discover:
		res, err = remote.Discover(ctx, c.Exchange)
	case cfg.Call.Capability != "":
		res, err = invoke(ctx, c, cfg.Call.Capability, cfg.Call.Action, data)
	default:
		logger.Debug("Sending request.", "event", cfg.Call.Event)
		res, err = c.Request(ctx, cfg.Call.Event, data)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

// invoke resolves the capability through a stub system built from the
// peer's capability list and runs action with data as its arguments.
func invoke(ctx context.Context, c *client.Client, name, action string, data any) (any, error) {
	caps, err := remote.Discover(ctx, c.Exchange)
	if err != nil {
		return nil, err
	}
	system := remote.NewSystem(nil).AddResolver(remote.StubResolver(c.Exchange, caps), 0)
	svc, err := system.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	stub, ok := svc.(*remote.Stub)
	if !ok {
		return nil, fmt.Errorf("%s is not a remote capability", name)
	}
	return stub.Call(ctx, action, spread(data)...)
}

// watch prints every connection broadcast until ctx is done. A dropped
// connection is redialled and the client reattached under the same session.
func watch(ctx context.Context, logger *slog.Logger, c *client.Client, conn transport.Conn, redial func(context.Context) (transport.Conn, error), out io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	c.OnBroadcast(server.EventController, func(_ context.Context, msg protocol.Broadcast) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(msg); err != nil {
			logger.Warn("Could not print broadcast.", "error", err)
		}
	})

	for {
		lost := make(chan struct{})
		var once sync.Once
		conn.On(transport.EventDisconnect, func(...any) { once.Do(func() { close(lost) }) })

		// The server adopts the session on the first request.
		if _, err := c.Request(ctx, EventPing, nil); err != nil {
			logger.Warn("Ping failed.", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-lost:
		}
		logger.Info("Connection lost, redialling.", "session", c.Session().Ident)

		next, err := redialUntil(ctx, logger, redial)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.Reattach(next)
		conn = next
	}
}

func redialUntil(ctx context.Context, logger *slog.Logger, redial func(context.Context) (transport.Conn, error)) (transport.Conn, error) {
	for {
		conn, err := redial(ctx)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Redial failed.", "error", err, "retry_in", RedialDelay)

		timer := time.NewTimer(RedialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openSessionStore(ctx context.Context, path string) (sessionstore.Store, func(), error) {
	if path == "" {
		return sessionstore.NewMemory(), func() {}, nil
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}
