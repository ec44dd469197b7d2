// Package transport describes the duplex, ordered, message-framed connection
// the protocol layer runs on. Concrete implementations live in sub-packages
// (an in-process pipe for tests) and in the socketio adapters.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Lifecycle events every Conn implementation must emit to its listeners.
const (
	EventDisconnect = "disconnect"
)

// ErrClosed is returned when emitting on a connection that has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Listener receives the arguments emitted under one event name.
type Listener func(args ...any)

// Conn is one bidirectional connection capable of emitting named events.
type Conn interface {
	// ID is the transport-assigned connection id.
	ID() string
	// On registers a listener for an event. Listeners of one connection are
	// invoked in the order the messages arrived.
	On(event string, fn Listener)
	Emit(event string, args ...any) error
	Close() error
}

// Acceptor hands out newly accepted inbound connections.
type Acceptor interface {
	OnConnection(fn func(Conn))
}

// Decode converts a received event argument into out. Transports deliver
// JSON-decoded generic values (maps, slices, float64), so the argument is
// re-encoded and decoded into the typed target.
func Decode(arg any, out any) error {
	var raw []byte
	switch v := arg.(type) {
	case nil:
		return errors.New("transport: nil message")
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("transport: re-encode message: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transport: decode message: %w", err)
	}
	return nil
}

// First returns the first event argument or nil.
func First(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
