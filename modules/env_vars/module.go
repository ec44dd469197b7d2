// Package env_vars provides the "service.env" component exposing the process
// environment.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/zerosystem/internal/lifecycle"
	"github.com/vk/zerosystem/internal/registry"
)

// Name is the registry entry of the environment service.
const Name = "service.env"

// AttrPrefix limits the exposed variables to names starting with its value.
const AttrPrefix = "prefix"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Env reads environment variables, optionally restricted to a prefix.
type Env struct {
	prefix string
}

// All returns every visible variable.
func (e *Env) All() map[string]string {
	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], e.prefix) {
			envMap[pair[0]] = pair[1]
		}
	}
	return envMap
}

// Get returns one visible variable.
func (e *Env) Get(name string) (string, error) {
	if !strings.HasPrefix(name, e.prefix) {
		return "", fmt.Errorf("variable %s is outside prefix %q", name, e.prefix)
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("variable %s is not set", name)
	}
	return v, nil
}

// Register adds the service and a module entry that checks its exposure
// during Init. The service is local only; a descriptor can mark it remote or
// alias it from a remote entry, which requires a non-empty prefix attribute.
func (m *Module) Register(r *registry.Registry) {
	var e *registry.Entry
	e = r.Add(Name).
		SetTag("service").
		SetConstruct(func() (any, error) {
			prefix, _ := e.StringAttribute(AttrPrefix)
			return &Env{prefix: prefix}, nil
		}).
		AddMethodAction("all", "All").
		AddMethodAction("get", "Get")

	r.Add("module.env_vars").
		SetTag(registry.TagModule).
		SetConstruct(func() (any, error) { return &guard{}, nil })
}

type guard struct{}

// Init fails when the service is reachable from peers without a prefix.
func (*guard) Init(_ context.Context, root *lifecycle.Root) error {
	reg := root.Registry()
	svc := reg.Entry(Name)
	if svc == nil {
		return nil
	}
	if prefix, _ := svc.StringAttribute(AttrPrefix); prefix != "" {
		return nil
	}
	for _, e := range reg.Finds(registry.Tagged(registry.TagRemote)) {
		if _, local := e.Remote(); e == svc || local == Name {
			return fmt.Errorf("%s is exposed by %s without a '%s' attribute", Name, e.Name(), AttrPrefix)
		}
	}
	return nil
}
