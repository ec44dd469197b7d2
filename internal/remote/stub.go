package remote

import (
	"context"
	"fmt"

	"github.com/vk/zerosystem/internal/protocol"
)

// Requester performs one correlated request, like (*protocol.Mount).Request
// or (*client.Client).Exchange.
type Requester func(ctx context.Context, event string, data any, meta protocol.Meta) (*protocol.Response, error)

// Stub calls the actions of one remote capability. Typed stubs embed it and
// expose one method per action.
type Stub struct {
	name string
	r    Requester
	meta protocol.Meta
}

// NewStub returns a stub for the capability name.
func NewStub(r Requester, name string) *Stub {
	return &Stub{name: name, r: r}
}

// WithTimeout returns a copy of the stub using timeout in milliseconds.
func (s *Stub) WithTimeout(ms int64) *Stub {
	cp := *s
	cp.meta.Timeout = ms
	return &cp
}

// Name returns the capability name.
func (s *Stub) Name() string { return s.name }

// Call invokes action with args and returns the raw result.
func (s *Stub) Call(ctx context.Context, action string, args ...any) (any, error) {
	resp, err := s.call(ctx, action, args)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CallInto invokes action and decodes the result into out.
func (s *Stub) CallInto(ctx context.Context, out any, action string, args ...any) error {
	resp, err := s.call(ctx, action, args)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (s *Stub) call(ctx context.Context, action string, args []any) (*protocol.Response, error) {
	if args == nil {
		args = []any{}
	}
	resp, err := s.r(ctx, EventCall, CallRequest{Name: s.name, Action: action, Args: args}, s.meta)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", s.name, action, err)
	}
	return resp, nil
}

// Discover asks the peer for its remote capabilities.
func Discover(ctx context.Context, r Requester) ([]Capability, error) {
	resp, err := r(ctx, EventDescribe, nil, protocol.Meta{})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	var caps []Capability
	if err := resp.Decode(&caps); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return caps, nil
}
