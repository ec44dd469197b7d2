package protocol

import (
	"context"
	"sort"
	"sync"
)

// Answer sets the response payload of the request being handled. The first
// call stops the chain; later handlers are not invoked.
type Answer func(value any)

// Handler serves one inbound request. It may call answer to respond, return
// without answering to pass the request on, or return an error to fail it.
type Handler func(ctx context.Context, req *Request, m *Mount, answer Answer) error

type prioritized struct {
	handler Handler
	prio    int
}

// HandlerChain keeps, per event, handlers sorted ascending by priority.
// Handlers of equal priority keep their registration order. One chain may be
// shared by any number of mounts.
type HandlerChain struct {
	mu       sync.RWMutex
	handlers map[string][]prioritized
}

// NewHandlerChain creates an empty chain.
func NewHandlerChain() *HandlerChain {
	return &HandlerChain{handlers: make(map[string][]prioritized)}
}

// Add registers fn for event at prio. Lower priorities run first.
func (c *HandlerChain) Add(event string, fn Handler, prio int) *HandlerChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.handlers[event], prioritized{handler: fn, prio: prio})
	sort.SliceStable(list, func(i, j int) bool { return list[i].prio < list[j].prio })
	c.handlers[event] = list
	return c
}

// Handlers returns the handlers for event in execution order.
func (c *HandlerChain) Handlers(event string) []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.handlers[event]
	if len(list) == 0 {
		return nil
	}
	out := make([]Handler, len(list))
	for i, p := range list {
		out[i] = p.handler
	}
	return out
}

// Events lists every event with at least one handler, sorted.
func (c *HandlerChain) Events() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.handlers))
	for event := range c.handlers {
		out = append(out, event)
	}
	sort.Strings(out)
	return out
}
