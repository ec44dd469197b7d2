// Package socketio adapts socket.io connections to the transport interfaces
// the protocol layer runs on.
package socketio

import (
	"context"
	"net/http"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/transport"
	"github.com/zishang520/socket.io/v2/socket"
)

// Path is the HTTP path the socket.io endpoint is served on.
const Path = "/socket.io/"

// Acceptor wraps a socket.io server and hands every inbound socket to the
// registered connection handlers.
type Acceptor struct {
	io *socket.Server

	mu       sync.RWMutex
	handlers []func(transport.Conn)
}

// NewAcceptor creates a socket.io server not yet bound to any listener.
// Mount Handler on an HTTP server to accept connections.
func NewAcceptor(ctx context.Context) *Acceptor {
	logger := ctxlog.FromContext(ctx)
	a := &Acceptor{io: socket.NewServer(nil, nil)}

	a.io.On("connection", func(clients ...any) {
		client, ok := transport.First(clients).(*socket.Socket)
		if !ok {
			logger.Warn("Ignoring connection event without a socket.")
			return
		}
		conn := &serverConn{s: client}
		logger.Debug("Accepted socket.io connection.", "sid", conn.ID())

		a.mu.RLock()
		handlers := append([]func(transport.Conn){}, a.handlers...)
		a.mu.RUnlock()
		for _, fn := range handlers {
			fn(conn)
		}
	})
	return a
}

// OnConnection implements transport.Acceptor.
func (a *Acceptor) OnConnection(fn func(transport.Conn)) {
	a.mu.Lock()
	a.handlers = append(a.handlers, fn)
	a.mu.Unlock()
}

// Handler serves the socket.io endpoint.
func (a *Acceptor) Handler() http.Handler {
	return a.io.ServeHandler(nil)
}

// Close disconnects every client and stops the server.
func (a *Acceptor) Close() {
	a.io.Close(func(error) {})
}

type serverConn struct {
	s *socket.Socket
}

func (c *serverConn) ID() string { return string(c.s.Id()) }

func (c *serverConn) On(event string, fn transport.Listener) {
	c.s.On(event, func(args ...any) { fn(args...) })
}

func (c *serverConn) Emit(event string, args ...any) error {
	return c.s.Emit(event, args...)
}

func (c *serverConn) Close() error {
	c.s.Disconnect(true)
	return nil
}
