// Package protocol implements correlated request/response messaging over a
// transport.Conn: the wire messages, the error taxonomy that crosses the wire,
// prioritized handler chains and the Mount that binds them to one connection.
package protocol

import (
	"time"

	"github.com/vk/zerosystem/internal/transport"
)

// Event names the messages travel under.
const (
	EventRequest  = "request"
	EventResponse = "response"
)

// DefaultTimeout applies to requests that do not set Meta.Timeout.
const DefaultTimeout = 1000 * time.Millisecond

// Meta is the envelope shared by requests and responses. Timeout is in
// milliseconds.
type Meta struct {
	UUID    string           `json:"uuid"`
	Timeout int64            `json:"timeout,omitempty"`
	Session string           `json:"session,omitempty"`
	Error   *SerializedError `json:"error,omitempty"`
}

// TimeoutDuration returns the request deadline, defaulting to DefaultTimeout.
func (m Meta) TimeoutDuration() time.Duration {
	if m.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(m.Timeout) * time.Millisecond
}

// Request asks the peer to handle Event.
type Request struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Meta  Meta   `json:"meta"`
}

// Decode converts the request payload into out.
func (r *Request) Decode(out any) error {
	return transport.Decode(r.Data, out)
}

// Response answers the request carrying the same Meta.UUID.
type Response struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Decode converts the response payload into out.
func (r *Response) Decode(out any) error {
	return transport.Decode(r.Data, out)
}

// Broadcast is an unsolicited message sent to every active connection. It is
// never answered.
type Broadcast struct {
	Handler string `json:"handler"`
	Data    any    `json:"data"`
}
