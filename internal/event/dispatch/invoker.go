package dispatch

import (
	"context"
	"time"
)

// Handler is the unit of work an Invoker runs.
// This mirrors the event package's erased handler to avoid circular imports.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event any) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// Invoker runs one handler for one occurrence and reports the outcome.
// Implementations never let a handler panic escape.
type Invoker interface {
	Invoke(ctx context.Context, event any, handler Handler) Result
}

// Result represents the outcome of a handler execution.
type Result struct {
	// Success is true if the handler completed without error or panic.
	Success bool

	// Error is the error returned by the handler, if any.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// TimedOut is true if an awaited handler exceeded its timeout.
	TimedOut bool

	// Duration is how long the handler took to execute.
	Duration time.Duration

	// Skipped is true if there was no handler to run.
	Skipped bool
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError returns true if the result indicates an error (not panic).
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic returns true if the result indicates a panic.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// PanicHandler is called when a handler panics during execution.
// It receives the event being processed, the panic value, and the stack trace.
type PanicHandler func(event any, panicValue any, stack []byte)

func defaultPanicHandler(event any, panicValue any, stack []byte) {}

// Stats contains counters shared by both invokers.
type Stats struct {
	// Invoked is the total number of Invoke calls.
	Invoked uint64

	// Succeeded is the number of successful handler executions.
	Succeeded uint64

	// Failed is the number of handlers that returned errors.
	Failed uint64

	// Panicked is the number of handlers that panicked.
	Panicked uint64

	// TimedOut is the number of awaited handlers that exceeded their timeout.
	TimedOut uint64

	// Skipped is the number of Invoke calls made without a handler.
	Skipped uint64

	// TotalDuration is the cumulative time spent in handlers.
	TotalDuration time.Duration
}
