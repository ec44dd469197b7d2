package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnresolved is returned by System.Get when no resolver knows an id.
var ErrUnresolved = errors.New("service could not be resolved")

// DefaultPriority is where the system's own resolver runs.
const DefaultPriority = -100

// ResolveFunc returns the service for id, or ok=false to pass.
type ResolveFunc func(ctx context.Context, id string) (service any, ok bool, err error)

// Constructor builds a namespaced service. It receives the system so it can
// look up its own dependencies.
type Constructor func(ctx context.Context, s *System) (any, error)

type resolver struct {
	fn   ResolveFunc
	prio int
}

// System resolves services on the calling side through a prioritized chain
// of resolvers. Its default resolver serves services set explicitly and
// constructs namespaced ones once.
type System struct {
	mu        sync.Mutex
	resolvers []resolver
	services  map[string]any
	namespace map[string]Constructor
}

// NewSystem creates a system whose default resolver builds services from
// namespace.
func NewSystem(namespace map[string]Constructor) *System {
	s := &System{
		services:  make(map[string]any),
		namespace: make(map[string]Constructor, len(namespace)),
	}
	for id, c := range namespace {
		s.namespace[id] = c
	}
	s.AddResolver(s.resolve, DefaultPriority)
	return s
}

// AddResolver adds fn at prio. Lower priorities are asked first; equal
// priorities keep insertion order.
func (s *System) AddResolver(fn ResolveFunc, prio int) *System {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers = append(s.resolvers, resolver{fn: fn, prio: prio})
	sort.SliceStable(s.resolvers, func(i, j int) bool { return s.resolvers[i].prio < s.resolvers[j].prio })
	return s
}

// Set registers service under id for the default resolver.
func (s *System) Set(id string, service any) *System {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[id] = service
	return s
}

// Get asks each resolver in turn for id.
func (s *System) Get(ctx context.Context, id string) (any, error) {
	s.mu.Lock()
	chain := append([]resolver(nil), s.resolvers...)
	s.mu.Unlock()

	for _, r := range chain {
		service, ok, err := r.fn(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", id, err)
		}
		if ok {
			return service, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolved, id)
}

func (s *System) resolve(ctx context.Context, id string) (any, bool, error) {
	s.mu.Lock()
	if service, ok := s.services[id]; ok {
		s.mu.Unlock()
		return service, true, nil
	}
	construct, ok := s.namespace[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	service, err := construct(ctx, s)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.services[id]; ok {
		return existing, true, nil
	}
	s.services[id] = service
	return service, true, nil
}

// StubResolver serves a Stub for every capability name in caps.
func StubResolver(r Requester, caps []Capability) ResolveFunc {
	known := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		known[c.Name] = struct{}{}
	}
	return func(_ context.Context, id string) (any, bool, error) {
		if _, ok := known[id]; !ok {
			return nil, false, nil
		}
		return NewStub(r, id), true, nil
	}
}
