package pending

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("request timed out")

// ErrUnknownCall is returned by Await for ids that were never registered or
// are already settled.
var ErrUnknownCall = errors.New("unknown pending call")

// TimeoutError reports a call whose deadline elapsed before it was settled.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.ID, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type result struct {
	value any
	err   error
}

// Call is one outstanding completion.
type Call struct {
	ID      string
	Created time.Time

	pcs  []uintptr
	done chan result
}

// Stack renders the call site that registered this call.
func (c *Call) Stack() string {
	if len(c.pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(c.pcs)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Table maps correlation ids to their outstanding calls.
type Table struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// New creates an empty table.
func New() *Table {
	return &Table{calls: make(map[string]*Call)}
}

// Register allocates a fresh id and stores an unsettled call under it. The
// caller's stack is recorded so remote failures can show the local call site.
func (t *Table) Register() *Call {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)

	c := &Call{
		ID:      uuid.NewString(),
		Created: time.Now(),
		pcs:     pcs[:n],
		done:    make(chan result, 1),
	}

	t.mu.Lock()
	t.calls[c.ID] = c
	t.mu.Unlock()
	return c
}

// Get returns the call registered under id, if it is still pending.
func (t *Table) Get(id string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	return c, ok
}

// Has reports whether id is still pending.
func (t *Table) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

// Len returns the number of pending calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Resolve settles id with value. It reports false when id is not pending.
func (t *Table) Resolve(id string, value any) bool {
	return t.settle(id, result{value: value})
}

// Reject settles id with err. It reports false when id is not pending.
func (t *Table) Reject(id string, err error) bool {
	return t.settle(id, result{err: err})
}

func (t *Table) settle(id string, r result) bool {
	c, ok := t.take(id)
	if !ok {
		return false
	}
	c.done <- r
	return true
}

func (t *Table) take(id string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return c, ok
}

// Await blocks until id is settled, timeout elapses or ctx is done. On
// timeout or cancellation the call is evicted from the table so a late
// response is discarded. A non-positive timeout waits on ctx alone.
func (t *Table) Await(ctx context.Context, id string, timeout time.Duration) (any, error) {
	c, ok := t.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	return t.Wait(ctx, c, timeout)
}

// Wait is Await for a call the caller already holds. Unlike Await it also
// observes a settlement that happened before Wait was entered.
func (t *Table) Wait(ctx context.Context, c *Call, timeout time.Duration) (any, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-c.done:
		return r.value, r.err
	case <-expired:
		if _, evicted := t.take(c.ID); evicted {
			return nil, &TimeoutError{ID: c.ID, Timeout: timeout}
		}
	case <-ctx.Done():
		if _, evicted := t.take(c.ID); evicted {
			return nil, ctx.Err()
		}
	}
	// Settled concurrently with the deadline; the result is already buffered.
	r := <-c.done
	return r.value, r.err
}
