package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/zerosystem/internal/pending"
	"github.com/vk/zerosystem/internal/registry"
)

// Sentinels matched by the typed errors below, locally and after they crossed
// the wire as a RemoteError.
var (
	ErrNoHandler  = errors.New("no handlers defined for event")
	ErrUnanswered = errors.New("no handler was responsible")
	ErrHandler    = errors.New("handler failed")
)

// Names used for SerializedError.Name.
const (
	NameNoHandler          = "NoHandlerError"
	NameUnanswered         = "UnansweredRequestError"
	NameHandlerExecution   = "HandlerExecutionError"
	NameTimeout            = "TimeoutError"
	NameDuplicateSingleton = "DuplicateSingletonError"
	NameGeneric            = "Error"
)

// NoHandlerError reports an inbound event without any registered handler.
type NoHandlerError struct {
	Event string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handlers defined for event %s", e.Event)
}

func (e *NoHandlerError) Is(target error) bool { return target == ErrNoHandler }

// UnansweredRequestError reports a chain that ran without any handler
// answering.
type UnansweredRequestError struct {
	Event string
}

func (e *UnansweredRequestError) Error() string {
	return fmt.Sprintf("no handler was responsible for request %s", e.Event)
}

func (e *UnansweredRequestError) Is(target error) bool { return target == ErrUnanswered }

// HandlerExecutionError wraps an error returned or a panic raised by a
// handler.
type HandlerExecutionError struct {
	Event string
	Err   error
	// Panic holds the recovered value when the handler panicked.
	Panic any
	Stack string
}

func (e *HandlerExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler for %s panicked: %v", e.Event, e.Panic)
	}
	return fmt.Sprintf("handler for %s: %v", e.Event, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

func (e *HandlerExecutionError) Is(target error) bool { return target == ErrHandler }

// SerializedError is the wire form of an error.
type SerializedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Serialize converts err to its wire form. Known error types keep their
// name so the peer can match them with errors.Is.
func Serialize(err error) *SerializedError {
	if err == nil {
		return nil
	}
	se := &SerializedError{Name: NameGeneric, Message: err.Error()}

	var (
		noHandler  *NoHandlerError
		unanswered *UnansweredRequestError
		execution  *HandlerExecutionError
		timeout    *pending.TimeoutError
		duplicate  *registry.DuplicateSingletonError
		remote     *RemoteError
	)
	switch {
	case errors.As(err, &remote):
		se.Name = remote.Name
		se.Message = remote.Message
		se.Stack = remote.Stack()
	case errors.As(err, &execution):
		se.Name = NameHandlerExecution
		se.Stack = execution.Stack
	case errors.As(err, &noHandler):
		se.Name = NameNoHandler
	case errors.As(err, &unanswered):
		se.Name = NameUnanswered
	case errors.As(err, &timeout):
		se.Name = NameTimeout
	case errors.As(err, &duplicate):
		se.Name = NameDuplicateSingleton
	}
	return se
}

// RemoteError is an error the peer reported in a response. It carries the
// remote stack and the local stack of the call that sent the request.
type RemoteError struct {
	Name        string
	Message     string
	RemoteStack string
	LocalStack  string
	UUID        string
	Response    *Response
}

// Deserialize rebuilds the error reported for request uuid. localStack is
// the call site that issued the request.
func Deserialize(se *SerializedError, uuid, localStack string) *RemoteError {
	if se == nil {
		return nil
	}
	name := se.Name
	if name == "" {
		name = NameGeneric
	}
	return &RemoteError{
		Name:        name,
		Message:     se.Message,
		RemoteStack: se.Stack,
		LocalStack:  localStack,
		UUID:        uuid,
	}
}

func (e *RemoteError) Error() string {
	return e.Name + ": " + e.Message
}

// Stack merges the remote stack with the local call site.
func (e *RemoteError) Stack() string {
	var b strings.Builder
	b.WriteString(e.RemoteStack)
	if e.LocalStack != "" {
		if b.Len() > 0 && !strings.HasSuffix(e.RemoteStack, "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "--- REQUEST %s ---\n", e.UUID)
		b.WriteString(e.LocalStack)
	}
	return b.String()
}

// Is matches the sentinel of the error type the peer reported.
func (e *RemoteError) Is(target error) bool {
	switch e.Name {
	case NameNoHandler:
		return target == ErrNoHandler
	case NameUnanswered:
		return target == ErrUnanswered
	case NameHandlerExecution:
		return target == ErrHandler
	case NameTimeout:
		return target == pending.ErrTimeout
	case NameDuplicateSingleton:
		return target == registry.ErrDuplicateSingleton
	}
	return false
}
