package http_client

import (
	"context"

	"github.com/vk/zerosystem/internal/lifecycle"
	"github.com/vk/zerosystem/internal/registry"
)

// Name is the registry entry of the shared client.
const Name = "service.http"

// AttrTimeout configures the client timeout as a duration string.
const AttrTimeout = "timeout"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register adds the client service and a module entry that validates its
// configuration during Init. The service is not remote unless a descriptor
// declares it so.
func (m *Module) Register(r *registry.Registry) {
	var e *registry.Entry
	e = r.Add(Name).
		SetTag("service").
		SetConstruct(func() (any, error) {
			timeout, _ := e.StringAttribute(AttrTimeout)
			return NewClient(timeout)
		}).
		AddMethodAction("request", "Request")

	r.Add("module.http_client").
		SetTag(registry.TagModule).
		SetConstruct(func() (any, error) { return &initer{}, nil })
}

type initer struct{}

// Init resolves the client so a bad timeout fails startup instead of the
// first request.
func (*initer) Init(ctx context.Context, root *lifecycle.Root) error {
	_, err := root.Registry().Get(ctx, Name)
	return err
}
