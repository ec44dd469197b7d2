// Package client is the protocol client: one outbound connection, a
// persistent session ident and broadcast subscriptions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/sessionstore"
	"github.com/vk/zerosystem/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

// SessionKey is where the session is persisted in the store.
const SessionKey = "zero.socket.session"

// Session identifies the client across reconnects and restarts.
type Session struct {
	Ident string `json:"ident"`
}

// BroadcastFunc receives an unsolicited broadcast.
type BroadcastFunc func(ctx context.Context, msg protocol.Broadcast)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTracerProvider records request spans with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.mountOpts = append(c.mountOpts, protocol.WithTracerProvider(tp))
	}
}

// Client owns exactly one outbound connection at a time.
type Client struct {
	store     sessionstore.Store
	session   Session
	chain     *protocol.HandlerChain
	hooks     *protocol.Hooks
	mountOpts []protocol.Option
	timeout   time.Duration

	ctx    context.Context
	logger *slog.Logger

	mu         sync.RWMutex
	mount      *protocol.Mount
	broadcasts map[string][]BroadcastFunc
}

// New loads or mints the session ident from store and attaches conn.
func New(ctx context.Context, conn transport.Conn, store sessionstore.Store, opts ...Option) (*Client, error) {
	ctx, logger := ctxlog.Channel(ctx, "client")
	c := &Client{
		store:      store,
		chain:      protocol.NewHandlerChain(),
		hooks:      protocol.NewHooks(),
		ctx:        ctx,
		logger:     logger,
		broadcasts: make(map[string][]BroadcastFunc),
	}
	for _, opt := range opts {
		opt(c)
	}

	session, err := loadSession(ctx, store)
	if err != nil {
		return nil, err
	}
	c.session = session

	stamp := func(_ context.Context, ev *protocol.HookEvent) error {
		if ev.Request != nil && ev.Phase == protocol.SendRequest {
			ev.Request.Meta.Session = c.session.Ident
		}
		if ev.Response != nil {
			ev.Response.Meta.Session = c.session.Ident
		}
		return nil
	}
	c.hooks.On(protocol.SendRequest, stamp)
	c.hooks.On(protocol.SendResponse, stamp)

	c.attach(conn)
	logger.Debug("Client created.", "session", session.Ident)
	return c, nil
}

// loadSession reads the persisted session, minting and saving a new ident
// when none exists.
func loadSession(ctx context.Context, store sessionstore.Store) (Session, error) {
	var session Session
	raw, ok, err := store.Get(ctx, SessionKey)
	if err != nil {
		return session, fmt.Errorf("load session: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			ctxlog.FromContext(ctx).Warn("Discarding unreadable session.", "error", err)
			session = Session{}
		}
	}
	if session.Ident != "" {
		return session, nil
	}

	session.Ident = uuid.NewString()
	b, err := json.Marshal(session)
	if err != nil {
		return session, err
	}
	if err := store.Set(ctx, SessionKey, string(b)); err != nil {
		return session, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Session returns the client's session.
func (c *Client) Session() Session { return c.session }

// Mount returns the mount of the current connection.
func (c *Client) Mount() *protocol.Mount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mount
}

// AddHandler lets the client serve requests from the server.
func (c *Client) AddHandler(event string, fn protocol.Handler, prio int) *Client {
	c.chain.Add(event, fn, prio)
	return c
}

// Hooks returns the client's hooks.
func (c *Client) Hooks() *protocol.Hooks { return c.hooks }

// RequestOption adjusts a single request.
type RequestOption func(*protocol.Meta)

// Timeout overrides the timeout of one request.
func Timeout(d time.Duration) RequestOption {
	return func(m *protocol.Meta) { m.Timeout = d.Milliseconds() }
}

// Request sends event and returns the response data.
func (c *Client) Request(ctx context.Context, event string, data any, opts ...RequestOption) (any, error) {
	resp, err := c.do(ctx, event, data, opts)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Call sends event and decodes the response data into out.
func (c *Client) Call(ctx context.Context, event string, data, out any, opts ...RequestOption) error {
	resp, err := c.do(ctx, event, data, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) do(ctx context.Context, event string, data any, opts []RequestOption) (*protocol.Response, error) {
	var meta protocol.Meta
	for _, opt := range opts {
		opt(&meta)
	}
	return c.Exchange(ctx, event, data, meta)
}

// Exchange sends event on the current connection and returns the whole
// response. A zero meta.Timeout takes the client default.
func (c *Client) Exchange(ctx context.Context, event string, data any, meta protocol.Meta) (*protocol.Response, error) {
	if meta.Timeout == 0 {
		meta.Timeout = c.timeout.Milliseconds()
	}
	return c.Mount().Request(ctx, event, data, meta)
}

// OnBroadcast subscribes fn to broadcasts sent under event.
func (c *Client) OnBroadcast(event string, fn BroadcastFunc) *Client {
	c.mu.Lock()
	first := len(c.broadcasts[event]) == 0
	c.broadcasts[event] = append(c.broadcasts[event], fn)
	m := c.mount
	c.mu.Unlock()

	if first && m != nil {
		c.listen(m.Conn(), event)
	}
	return c
}

// Reattach replaces the connection after a reconnect. The session ident and
// broadcast subscriptions carry over.
func (c *Client) Reattach(conn transport.Conn) {
	c.logger.Debug("Reattaching.", "conn", conn.ID(), "session", c.session.Ident)
	c.attach(conn)
}

func (c *Client) attach(conn transport.Conn) {
	opts := append([]protocol.Option{protocol.WithChain(c.chain), protocol.WithHooks(c.hooks)}, c.mountOpts...)
	m := protocol.NewMount(c.ctx, conn, opts...).SetID(c.session.Ident)

	c.mu.Lock()
	c.mount = m
	events := make([]string, 0, len(c.broadcasts))
	for event := range c.broadcasts {
		events = append(events, event)
	}
	c.mu.Unlock()

	for _, event := range events {
		c.listen(conn, event)
	}
	m.Init()
}

func (c *Client) listen(conn transport.Conn, event string) {
	conn.On(event, func(args ...any) {
		var msg protocol.Broadcast
		if err := transport.Decode(transport.First(args), &msg); err != nil {
			c.logger.Warn("Dropping malformed broadcast.", "event", event, "error", err)
			return
		}
		c.mu.RLock()
		fns := append([]BroadcastFunc(nil), c.broadcasts[event]...)
		c.mu.RUnlock()
		for _, fn := range fns {
			fn(c.ctx, msg)
		}
	})
}

// Close closes the current connection.
func (c *Client) Close() error {
	return c.Mount().Close()
}
