// Package remote exposes registry entries tagged "remote" to peers: a
// discovery event describing them, a call event invoking their actions, and
// typed stubs plus a resolver chain on the calling side.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/zerosystem/internal/protocol"
	"github.com/vk/zerosystem/internal/registry"
)

// Well-known events.
const (
	EventDescribe = "system:remote"
	EventCall     = "system:call"
)

// ErrNotRemote is returned when calling an entry that is not tagged remote.
var ErrNotRemote = errors.New("not a remote capability")

// Capability describes one remote entry without resolving it.
type Capability struct {
	Name       string         `json:"name"`
	Tags       []string       `json:"tags"`
	Attributes map[string]any `json:"attributes"`
	Local      string         `json:"local,omitempty"`
	File       string         `json:"file,omitempty"`
	Actions    []string       `json:"actions,omitempty"`
}

// CallRequest is the payload of EventCall.
type CallRequest struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Args   []any  `json:"args"`
}

// Describe lists every entry tagged remote in registration order.
func Describe(reg *registry.Registry) []Capability {
	entries := reg.Finds(registry.Tagged(registry.TagRemote))
	out := make([]Capability, 0, len(entries))
	for _, e := range entries {
		_, local := e.Remote()
		out = append(out, Capability{
			Name:       e.Name(),
			Tags:       e.Tags(),
			Attributes: e.Attributes(),
			Local:      local,
			File:       e.File(),
			Actions:    e.ActionNames(),
		})
	}
	return out
}

// Invoke runs an action declared on the remote entry name. An entry with a
// local alias runs the action on the alias's instance.
func Invoke(ctx context.Context, reg *registry.Registry, call CallRequest) (any, error) {
	e := reg.Entry(call.Name)
	if e == nil || !e.HasTag(registry.TagRemote) {
		return nil, fmt.Errorf("%w: %s", ErrNotRemote, call.Name)
	}
	if !e.HasAction(call.Action) {
		return nil, fmt.Errorf("%w: %s on %s", registry.ErrNoAction, call.Action, call.Name)
	}

	var (
		object any
		err    error
	)
	if _, local := e.Remote(); local != "" {
		target := reg.Entry(local)
		if target == nil {
			return nil, fmt.Errorf("remote %s: local alias %s is not registered", call.Name, local)
		}
		object, err = target.Object(ctx)
	} else {
		object, err = e.Object(ctx)
	}
	if err != nil {
		return nil, err
	}

	action, err := e.BindAction(call.Action, object)
	if err != nil {
		return nil, err
	}
	return action(ctx, call.Args...)
}

// Install registers the discovery and call handlers on chain.
func Install(chain *protocol.HandlerChain, reg *registry.Registry, prio int) {
	chain.Add(EventDescribe, func(_ context.Context, _ *protocol.Request, _ *protocol.Mount, answer protocol.Answer) error {
		answer(Describe(reg))
		return nil
	}, prio)

	chain.Add(EventCall, func(ctx context.Context, req *protocol.Request, _ *protocol.Mount, answer protocol.Answer) error {
		var call CallRequest
		if err := req.Decode(&call); err != nil {
			return err
		}
		v, err := Invoke(ctx, reg, call)
		if err != nil {
			return err
		}
		answer(v)
		return nil
	}, prio)
}
