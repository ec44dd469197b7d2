package protocol

import (
	"context"
	"sync"
)

// Phase identifies a point of the request/response cycle where hooks run.
type Phase int

const (
	// SendRequest runs before a request is emitted. An error aborts it.
	SendRequest Phase = iota
	// SendResponse runs before a response is emitted.
	SendResponse
	// ReceiveRequest runs before the handler chain. An error is sent back
	// as the response.
	ReceiveRequest
	// ReceiveResponse runs before a successful response settles its call.
	ReceiveResponse
	// RejectResponse runs before an error response rejects its call.
	RejectResponse
)

func (p Phase) String() string {
	switch p {
	case SendRequest:
		return "send-request"
	case SendResponse:
		return "send-response"
	case ReceiveRequest:
		return "receive-request"
	case ReceiveResponse:
		return "receive-response"
	case RejectResponse:
		return "reject-response"
	}
	return "unknown"
}

// HookEvent is what a hook sees. Request is set for the request phases and
// Response for the response phases; SendResponse also carries the Request
// being answered.
type HookEvent struct {
	Phase    Phase
	Mount    *Mount
	Request  *Request
	Response *Response
}

// Hook intercepts one phase. Hooks may modify the message in place.
type Hook func(ctx context.Context, ev *HookEvent) error

// Hooks holds ordered hook lists per phase. Like HandlerChain it may be
// shared by many mounts.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[Phase][]Hook
}

// NewHooks creates an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[Phase][]Hook)}
}

// On appends hook to phase.
func (h *Hooks) On(phase Phase, hook Hook) *Hooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[phase] = append(h.hooks[phase], hook)
	return h
}

// run invokes the hooks of ev.Phase in order, stopping at the first error.
func (h *Hooks) run(ctx context.Context, ev *HookEvent) error {
	h.mu.RLock()
	list := append([]Hook(nil), h.hooks[ev.Phase]...)
	h.mu.RUnlock()
	for _, hook := range list {
		if err := hook(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
