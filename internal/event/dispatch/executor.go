package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Executor runs one handler for one occurrence and turns its outcome into a
// Result. A handler registered when the occurrence fires is always called:
// a canceled context is handed to the handler, not treated as a reason to
// skip it. Panics are recovered and reported to the panic handler.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the function told about recovered panics.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{panicHandler: defaultPanicHandler}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute calls handler with event. Only a nil handler is skipped.
func (e *Executor) Execute(ctx context.Context, event any, handler Handler) (result Result) {
	if handler == nil {
		return Result{Error: ErrNilHandler, Skipped: true}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = e.recovered(event, r)
		}
		result.Duration = time.Since(start)
	}()

	if err := handler.Handle(ctx, event); err != nil {
		return Result{Error: err}
	}
	return Result{Success: true}
}

func (e *Executor) recovered(event, value any) Result {
	stack := debug.Stack()
	e.report(event, value, stack)
	return Result{
		Error:      fmt.Errorf("panic: %v", value),
		Panicked:   true,
		PanicValue: value,
		PanicStack: stack,
	}
}

// report hands a panic to the panic handler; a panic in there is dropped.
func (e *Executor) report(event, value any, stack []byte) {
	if e.panicHandler == nil {
		return
	}
	defer func() { _ = recover() }()
	e.panicHandler(event, value, stack)
}
