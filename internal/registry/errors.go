package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConstructor is returned when an entry has neither a factory, an
	// owning collector nor a default constructor.
	ErrNoConstructor = errors.New("no factory or constructor")
	// ErrCollectorMissing is returned when an entry names a collector that is
	// not registered.
	ErrCollectorMissing = errors.New("owning collector not registered")
	// ErrNoAction is returned for undefined action names.
	ErrNoAction = errors.New("action not defined")
	// ErrDuplicateSingleton is matched by *DuplicateSingletonError.
	ErrDuplicateSingleton = errors.New("singleton already constructed")
)

// ResolveError wraps a failure to produce an entry's instance.
type ResolveError struct {
	Name string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// DuplicateSingletonError is returned when a second instance of a component
// designed to be a process singleton is constructed against the same registry.
type DuplicateSingletonError struct {
	Name string
}

func (e *DuplicateSingletonError) Error() string {
	return fmt.Sprintf("singleton %q already constructed", e.Name)
}

func (e *DuplicateSingletonError) Is(target error) bool { return target == ErrDuplicateSingleton }
