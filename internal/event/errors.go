package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event engine.
var (
	// ErrUnknownShape is returned when a shape was never declared.
	ErrUnknownShape = errors.New("unknown event shape")

	// ErrInvalidDescriptor is returned by Declare for a malformed descriptor.
	ErrInvalidDescriptor = errors.New("invalid event descriptor")

	// ErrDuplicateShape is returned when a shape or shape name is declared twice
	// with conflicting descriptors.
	ErrDuplicateShape = errors.New("duplicate event shape")

	// ErrChainFixed is returned by Declare for a shape whose declaration
	// would change a fan-out chain that was already computed.
	ErrChainFixed = errors.New("fan-out chain already fixed")

	// ErrNilOwner is returned when a registration call has no owner.
	ErrNilOwner = errors.New("owner cannot be nil")

	// ErrForeignOwner is returned when an owner belongs to a different host.
	ErrForeignOwner = errors.New("owner belongs to a different host")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilSource is returned when a nil source is provided.
	ErrNilSource = errors.New("source cannot be nil")

	// ErrNotComparable is returned when an owner, handler or source cannot be
	// used as a map key.
	ErrNotComparable = errors.New("value is not comparable")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ForeignOwnerError reports an owner whose host does not match the bus.
type ForeignOwnerError struct {
	// Want is the host ID of the bus.
	Want HostID

	// Got is the host ID reported by the owner.
	Got HostID
}

// Error implements the error interface.
func (e *ForeignOwnerError) Error() string {
	return fmt.Sprintf("owner belongs to host %s, bus belongs to host %s", e.Got, e.Want)
}

// Is allows errors.Is to match ForeignOwnerError with ErrForeignOwner.
func (e *ForeignOwnerError) Is(target error) bool {
	return target == ErrForeignOwner
}

// HandlerError wraps an error from a handler with additional context.
type HandlerError struct {
	// Handler is the name of the handler that failed.
	Handler string

	// Shape is the name of the dispatcher's shape.
	Shape string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler " + e.Handler + " failed on " + e.Shape + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// Handler is the name of the handler that panicked.
	Handler string

	// Shape is the name of the dispatcher's shape.
	Shape string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked on %s: %v", e.Handler, e.Shape, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
