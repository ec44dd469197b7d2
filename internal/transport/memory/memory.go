// Package memory provides an in-process transport.Conn pair and a Hub that
// plays the role of a listening server. Messages are JSON-encoded on emit and
// decoded into generic values on delivery, matching what a websocket
// transport hands to its listeners.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vk/zerosystem/internal/transport"
)

const inboxSize = 1024

type message struct {
	event string
	args  []any
}

// Conn is one end of an in-memory pipe.
type Conn struct {
	id   string
	peer *Conn

	mu        sync.RWMutex
	listeners map[string][]transport.Listener

	inbox     chan message
	closed    chan struct{}
	closeOnce sync.Once
}

// Pipe returns two connected ends. Each end runs its own delivery loop so
// listeners observe messages in emit order.
func Pipe(idA, idB string) (*Conn, *Conn) {
	a := newConn(idA)
	b := newConn(idB)
	a.peer, b.peer = b, a
	go a.loop()
	go b.loop()
	return a, b
}

func newConn(id string) *Conn {
	return &Conn{
		id:        id,
		listeners: make(map[string][]transport.Listener),
		inbox:     make(chan message, inboxSize),
		closed:    make(chan struct{}),
	}
}

// ID implements transport.Conn.
func (c *Conn) ID() string { return c.id }

// On implements transport.Conn.
func (c *Conn) On(event string, fn transport.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], fn)
}

// Emit implements transport.Conn.
func (c *Conn) Emit(event string, args ...any) error {
	decoded := make([]any, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("memory: encode %q: %w", event, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("memory: decode %q: %w", event, err)
		}
		decoded = append(decoded, v)
	}

	select {
	case <-c.closed:
		return transport.ErrClosed
	case <-c.peer.closed:
		return transport.ErrClosed
	default:
	}

	select {
	case c.peer.inbox <- message{event: event, args: decoded}:
		return nil
	case <-c.peer.closed:
		return transport.ErrClosed
	}
}

// Close closes both ends and fires the disconnect event on each.
func (c *Conn) Close() error {
	c.shutdown()
	c.peer.shutdown()
	return nil
}

// Closed is closed once the connection shut down.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.dispatch(message{event: transport.EventDisconnect})
	})
}

func (c *Conn) loop() {
	for {
		select {
		case m := <-c.inbox:
			c.dispatch(m)
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) dispatch(m message) {
	c.mu.RLock()
	listeners := append([]transport.Listener(nil), c.listeners[m.event]...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(m.args...)
	}
}

// Hub accepts in-memory connections, standing in for a listening server.
type Hub struct {
	mu       sync.Mutex
	handlers []func(transport.Conn)
	seq      int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// OnConnection implements transport.Acceptor.
func (h *Hub) OnConnection(fn func(transport.Conn)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, fn)
}

// Dial opens a new pipe, hands the server end to every connection handler and
// returns the client end.
func (h *Hub) Dial() *Conn {
	h.mu.Lock()
	h.seq++
	id := fmt.Sprintf("conn-%d", h.seq)
	handlers := append([]func(transport.Conn){}, h.handlers...)
	h.mu.Unlock()

	client, server := Pipe(id, id)
	for _, fn := range handlers {
		fn(server)
	}
	return client
}
