// Package server accepts inbound connections, wraps each in a protocol Mount
// sharing one handler chain, and tracks the active mounts for broadcasts.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/registry"
	"github.com/vk/zerosystem/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

// Name is the registry entry and singleton claim of the server.
const Name = "socket"

// Broadcast channel and handler announcing connection changes.
const (
	EventController = "server:controller"
	HandlerInfo     = "info"
)

// Lifecycle is a connection lifecycle notification kind.
type Lifecycle string

const (
	Connect    Lifecycle = "connect"
	Disconnect Lifecycle = "disconnect"
)

// Info is the payload of the connect/disconnect broadcasts.
type Info struct {
	Type  Lifecycle `json:"type"`
	Mount string    `json:"mount"`
}

// LifecycleFunc observes a mount connecting or disconnecting.
type LifecycleFunc func(ctx context.Context, s *Server, m *protocol.Mount)

// Option configures a Server.
type Option func(*Server)

// WithTracerProvider records mount spans with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.mountOpts = append(s.mountOpts, protocol.WithTracerProvider(tp))
	}
}

// Server is the protocol server.
type Server struct {
	reg       *registry.Registry
	chain     *protocol.HandlerChain
	hooks     *protocol.Hooks
	mountOpts []protocol.Option

	ctx    context.Context
	logger *slog.Logger

	mu        sync.RWMutex
	mounts    []*protocol.Mount
	listeners map[Lifecycle][]LifecycleFunc
}

// New creates the server and registers it as "socket" in reg. Only one
// server may exist per registry.
func New(ctx context.Context, reg *registry.Registry, opts ...Option) (*Server, error) {
	if err := reg.Claim(Name); err != nil {
		return nil, err
	}
	ctx, logger := ctxlog.Channel(ctx, Name)
	s := &Server{
		reg:       reg,
		chain:     protocol.NewHandlerChain(),
		hooks:     protocol.NewHooks(),
		ctx:       ctx,
		logger:    logger,
		listeners: make(map[Lifecycle][]LifecycleFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hooks.On(protocol.ReceiveRequest, adoptSession)
	reg.Set(Name, s)
	logger.Debug("Created socket server.")
	return s, nil
}

// adoptSession makes the client's session ident the mount id on the first
// request and rejects requests carrying a different ident afterwards.
func adoptSession(_ context.Context, ev *protocol.HookEvent) error {
	session := ev.Request.Meta.Session
	if session == "" {
		return nil
	}
	if !ev.Mount.HasExplicitID() {
		ev.Mount.SetID(session)
		return nil
	}
	if id := ev.Mount.ID(); id != session {
		return &protocol.HandlerExecutionError{
			Event: ev.Request.Event,
			Err:   fmt.Errorf("session %s does not match mount %s", session, id),
		}
	}
	return nil
}

// Registry returns the registry the server was created with.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Chain returns the handler chain shared by all mounts.
func (s *Server) Chain() *protocol.HandlerChain { return s.chain }

// Hooks returns the hooks shared by all mounts.
func (s *Server) Hooks() *protocol.Hooks { return s.hooks }

// AddHandler registers fn for event on every current and future mount.
func (s *Server) AddHandler(event string, fn protocol.Handler, prio int) *Server {
	s.chain.Add(event, fn, prio)
	return s
}

// OnLifecycle subscribes fn to connect or disconnect notifications.
func (s *Server) OnLifecycle(kind Lifecycle, fn LifecycleFunc) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[kind] = append(s.listeners[kind], fn)
	return s
}

// Attach serves every connection a accepts.
func (s *Server) Attach(a transport.Acceptor) {
	a.OnConnection(func(conn transport.Conn) { s.OnConnect(conn) })
	s.logger.Debug("Attached socket server.")
}

// OnConnect wraps conn in a mount, tracks it and announces it.
func (s *Server) OnConnect(conn transport.Conn) *protocol.Mount {
	s.logger.Debug("Client connecting.", "id", conn.ID())

	opts := append([]protocol.Option{protocol.WithChain(s.chain), protocol.WithHooks(s.hooks)}, s.mountOpts...)
	m := protocol.NewMount(s.ctx, conn, opts...)
	conn.On(transport.EventDisconnect, func(...any) { s.onDisconnect(m) })
	m.Init()

	s.mu.Lock()
	s.mounts = append(s.mounts, m)
	s.mu.Unlock()

	s.fire(Connect, m)
	s.Broadcast(EventController, HandlerInfo, Info{Type: Connect, Mount: m.ID()})
	s.logger.Debug("Client connected.", "id", m.ID())
	return m
}

func (s *Server) onDisconnect(m *protocol.Mount) {
	s.mu.Lock()
	i := slices.Index(s.mounts, m)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.mounts = slices.Delete(s.mounts, i, i+1)
	s.mu.Unlock()

	s.logger.Debug("Client disconnected.", "id", m.ID())
	s.fire(Disconnect, m)
	s.Broadcast(EventController, HandlerInfo, Info{Type: Disconnect, Mount: m.ID()})
}

func (s *Server) fire(kind Lifecycle, m *protocol.Mount) {
	s.mu.RLock()
	listeners := append([]LifecycleFunc(nil), s.listeners[kind]...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(s.ctx, s, m)
	}
}

// Broadcast sends {handler, data} under event to every active mount without
// waiting for any acknowledgment. It returns how many mounts it reached.
func (s *Server) Broadcast(event, handler string, data any) int {
	s.logger.Debug("Broadcast.", "event", event, "handler", handler)
	msg := protocol.Broadcast{Handler: handler, Data: data}
	sent := 0
	for _, m := range s.Mounts() {
		if err := m.Emit(event, msg); err != nil {
			s.logger.Warn("Broadcast failed.", "event", event, "mount", m.ID(), "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Mounts returns the active mounts in connection order.
func (s *Server) Mounts() []*protocol.Mount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.mounts)
}

// Mount returns the active mount with id, or nil.
func (s *Server) Mount(id string) *protocol.Mount {
	for _, m := range s.Mounts() {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// Close disconnects every active mount.
func (s *Server) Close() error {
	for _, m := range s.Mounts() {
		if err := m.Close(); err != nil {
			s.logger.Warn("Closing mount failed.", "mount", m.ID(), "error", err)
		}
	}
	return nil
}
