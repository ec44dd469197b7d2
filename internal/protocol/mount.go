package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vk/zerosystem/internal/ctxlog"
	"github.com/vk/zerosystem/internal/pending"
	"github.com/vk/zerosystem/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/zerosystem/internal/protocol"

// Mount is the protocol engine bound to one connection for its lifetime.
// It sends correlated requests, serves inbound requests through its handler
// chain and settles pending calls from inbound responses.
type Mount struct {
	conn   transport.Conn
	chain  *HandlerChain
	hooks  *Hooks
	calls  *pending.Table
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu sync.RWMutex
	id string

	serving  sync.WaitGroup
	initOnce sync.Once
}

// Option configures a Mount.
type Option func(*Mount)

// WithChain shares chain with other mounts.
func WithChain(chain *HandlerChain) Option {
	return func(m *Mount) { m.chain = chain }
}

// WithHooks shares hooks with other mounts.
func WithHooks(hooks *Hooks) Option {
	return func(m *Mount) { m.hooks = hooks }
}

// WithTable uses calls as the pending-call table.
func WithTable(calls *pending.Table) Option {
	return func(m *Mount) { m.calls = calls }
}

// WithTracerProvider sets where spans are recorded. The global provider is
// used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Mount) { m.tracer = tp.Tracer(tracerName) }
}

// NewMount binds conn. The mount's context, used for inbound handlers, is
// derived from ctx and cancelled when the connection disconnects. Call Init
// to start listening.
func NewMount(ctx context.Context, conn transport.Conn, opts ...Option) *Mount {
	m := &Mount{conn: conn}
	for _, opt := range opts {
		opt(m)
	}
	if m.chain == nil {
		m.chain = NewHandlerChain()
	}
	if m.hooks == nil {
		m.hooks = NewHooks()
	}
	if m.calls == nil {
		m.calls = pending.New()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	ctx, m.logger = ctxlog.Channel(ctx, conn.ID())
	m.ctx, m.cancel = context.WithCancel(ctx)
	return m
}

// Init subscribes to the connection's request and response events. It is
// safe to call more than once.
func (m *Mount) Init() *Mount {
	m.initOnce.Do(func() {
		m.conn.On(EventRequest, m.OnRequest)
		m.conn.On(EventResponse, m.OnResponse)
		m.conn.On(transport.EventDisconnect, func(...any) { m.cancel() })
		m.logger.Debug("Mount initialized.")
	})
	return m
}

// ID returns the peer id set with SetID, or the connection id.
func (m *Mount) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.id != "" {
		return m.id
	}
	return m.conn.ID()
}

// SetID overrides the peer id so a logical session survives reconnects.
func (m *Mount) SetID(id string) *Mount {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return m
}

// HasExplicitID reports whether SetID was called with a non-empty id.
func (m *Mount) HasExplicitID() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id != ""
}

// Conn returns the underlying connection.
func (m *Mount) Conn() transport.Conn { return m.conn }

// Chain returns the handler chain.
func (m *Mount) Chain() *HandlerChain { return m.chain }

// Hooks returns the hook set.
func (m *Mount) Hooks() *Hooks { return m.hooks }

// Pending returns the pending-call table.
func (m *Mount) Pending() *pending.Table { return m.calls }

// Context is cancelled once the connection disconnects.
func (m *Mount) Context() context.Context { return m.ctx }

// AddHandler registers fn for event on the mount's chain.
func (m *Mount) AddHandler(event string, fn Handler, prio int) *Mount {
	m.chain.Add(event, fn, prio)
	return m
}

// Emit sends a raw event, bypassing correlation.
func (m *Mount) Emit(event string, args ...any) error {
	return m.conn.Emit(event, args...)
}

// Request sends event with data and waits for the correlated response. A
// zero meta.Timeout means DefaultTimeout. Remote failures are returned as
// *RemoteError, deadlines as *pending.TimeoutError.
func (m *Mount) Request(ctx context.Context, event string, data any, meta Meta) (*Response, error) {
	call := m.calls.Register()
	meta.UUID = call.ID
	timeout := meta.TimeoutDuration()
	meta.Timeout = timeout.Milliseconds()
	req := &Request{Event: event, Data: data, Meta: meta}

	ctx, span := m.tracer.Start(ctx, "protocol.request "+event,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("zero.event", event),
			attribute.String("zero.uuid", call.ID),
			attribute.String("zero.mount", m.ID()),
		))
	defer span.End()

	fail := func(err error) (*Response, error) {
		m.calls.Reject(call.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := m.hooks.run(ctx, &HookEvent{Phase: SendRequest, Mount: m, Request: req}); err != nil {
		return fail(fmt.Errorf("send request hook: %w", err))
	}

	m.logger.Debug("Request.", "event", event, "uuid", call.ID)
	if err := m.conn.Emit(EventRequest, req); err != nil {
		return fail(fmt.Errorf("emit request %s: %w", event, err))
	}

	v, err := m.calls.Wait(ctx, call, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	resp, ok := v.(*Response)
	if !ok {
		return nil, fmt.Errorf("request %s settled with %T", call.ID, v)
	}
	return resp, nil
}

// Response answers req with data. A request whose Meta.Error is set is
// answered as a failure.
func (m *Mount) Response(ctx context.Context, req *Request, data any) error {
	resp := &Response{Meta: req.Meta, Data: data}
	if err := m.hooks.run(ctx, &HookEvent{Phase: SendResponse, Mount: m, Request: req, Response: resp}); err != nil {
		m.logger.Warn("Send response hook failed; responding anyway.", "event", req.Event, "uuid", req.Meta.UUID, "error", err)
	}
	m.logger.Debug("Response.", "event", req.Event, "uuid", resp.Meta.UUID)
	return m.conn.Emit(EventResponse, resp)
}

// fail answers req with err.
func (m *Mount) fail(ctx context.Context, req *Request, err error) error {
	req.Meta.Error = Serialize(err)
	return m.Response(ctx, req, nil)
}

// OnRequest is the listener for inbound requests. Each request is served on
// its own goroutine so a slow handler never blocks the connection.
func (m *Mount) OnRequest(args ...any) {
	var req Request
	if err := transport.Decode(transport.First(args), &req); err != nil {
		m.logger.Warn("Dropping malformed request.", "error", err)
		return
	}
	if req.Meta.UUID == "" {
		m.logger.Warn("Dropping request without uuid.", "event", req.Event)
		return
	}

	m.serving.Add(1)
	go func() {
		defer m.serving.Done()
		m.serve(&req)
	}()
}

func (m *Mount) serve(req *Request) {
	ctx, span := m.tracer.Start(m.ctx, "protocol.serve "+req.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("zero.event", req.Event),
			attribute.String("zero.uuid", req.Meta.UUID),
			attribute.String("zero.mount", m.ID()),
		))
	defer span.End()

	m.logger.Debug("On request.", "event", req.Event, "uuid", req.Meta.UUID)

	data, err := m.handle(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Debug("Request failed.", "event", req.Event, "uuid", req.Meta.UUID, "error", err)
		err = m.fail(ctx, req, err)
	} else {
		err = m.Response(ctx, req, data)
	}
	if err != nil {
		m.logger.Warn("Could not send response.", "event", req.Event, "uuid", req.Meta.UUID, "error", err)
	}
}

// handle runs the receive hooks and the handler chain for req.
func (m *Mount) handle(ctx context.Context, req *Request) (any, error) {
	if err := m.hooks.run(ctx, &HookEvent{Phase: ReceiveRequest, Mount: m, Request: req}); err != nil {
		return nil, err
	}

	handlers := m.chain.Handlers(req.Event)
	if len(handlers) == 0 {
		return nil, &NoHandlerError{Event: req.Event}
	}

	var (
		answered bool
		value    any
	)
	answer := func(v any) {
		if !answered {
			answered, value = true, v
		}
	}
	for _, h := range handlers {
		if err := m.invoke(ctx, h, req, answer); err != nil {
			return nil, err
		}
		if answered {
			return value, nil
		}
	}
	return nil, &UnansweredRequestError{Event: req.Event}
}

// invoke runs one handler, turning returned errors and panics into a
// *HandlerExecutionError.
func (m *Mount) invoke(ctx context.Context, h Handler, req *Request, answer Answer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerExecutionError{Event: req.Event, Panic: r, Stack: string(debug.Stack())}
		}
	}()
	if herr := h(ctx, req, m, answer); herr != nil {
		return &HandlerExecutionError{Event: req.Event, Err: herr, Stack: string(debug.Stack())}
	}
	return nil
}

// OnResponse is the listener for inbound responses. Responses for unknown
// or already settled ids are discarded.
func (m *Mount) OnResponse(args ...any) {
	var resp Response
	if err := transport.Decode(transport.First(args), &resp); err != nil {
		m.logger.Warn("Dropping malformed response.", "error", err)
		return
	}

	call, ok := m.calls.Get(resp.Meta.UUID)
	if !ok {
		m.logger.Debug("Discarding stale response.", "uuid", resp.Meta.UUID)
		return
	}
	m.logger.Debug("On response.", "uuid", resp.Meta.UUID)

	if resp.Meta.Error != nil {
		remote := Deserialize(resp.Meta.Error, resp.Meta.UUID, call.Stack())
		remote.Response = &resp
		if err := m.hooks.run(m.ctx, &HookEvent{Phase: RejectResponse, Mount: m, Response: &resp}); err != nil {
			m.calls.Reject(resp.Meta.UUID, err)
			return
		}
		m.calls.Reject(resp.Meta.UUID, remote)
		return
	}

	if err := m.hooks.run(m.ctx, &HookEvent{Phase: ReceiveResponse, Mount: m, Response: &resp}); err != nil {
		m.calls.Reject(resp.Meta.UUID, err)
		return
	}
	m.calls.Resolve(resp.Meta.UUID, &resp)
}

// Wait blocks until every inbound request being served has been answered.
func (m *Mount) Wait() {
	m.serving.Wait()
}

// Close closes the connection.
func (m *Mount) Close() error {
	m.cancel()
	return m.conn.Close()
}
