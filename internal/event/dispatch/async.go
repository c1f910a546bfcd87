package dispatch

import (
	"context"
	"time"
)

// AsyncInvoker runs each handler on its own goroutine and awaits it before
// returning, so handlers for one occurrence never overlap.
//
// Cancellation of the caller's context reaches the handler but does not end
// the wait; only a timeout does. When a timeout is set and the handler does
// not finish in time, Invoke returns ErrHandlerTimeout and the handler's
// context is cancelled. The handler goroutine is abandoned; it must honour
// its context to exit.
type AsyncInvoker struct {
	counters
	executor *Executor
	timeout  time.Duration
}

// NewAsyncInvoker creates a new awaiting invoker.
func NewAsyncInvoker(opts ...Option) *AsyncInvoker {
	cfg := newConfig(opts)
	return &AsyncInvoker{
		executor: NewExecutor(WithExecutorPanicHandler(cfg.panicHandler)),
		timeout:  cfg.timeout,
	}
}

// Timeout returns the default handler timeout.
func (a *AsyncInvoker) Timeout() time.Duration {
	return a.timeout
}

// Invoke executes the handler with the invoker's default timeout.
func (a *AsyncInvoker) Invoke(ctx context.Context, event any, handler Handler) Result {
	return a.InvokeWithTimeout(ctx, event, handler, a.timeout)
}

// InvokeWithTimeout executes the handler on a new goroutine and waits for it
// to return or for timeout to elapse. A zero timeout waits indefinitely.
func (a *AsyncInvoker) InvokeWithTimeout(ctx context.Context, event any, handler Handler, timeout time.Duration) Result {
	result := a.await(ctx, event, handler, timeout)
	a.record(result)
	return result
}

func (a *AsyncInvoker) await(ctx context.Context, event any, handler Handler, timeout time.Duration) Result {
	if handler == nil {
		return Result{Error: ErrNilHandler, Skipped: true}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- a.executor.Execute(runCtx, event, handler)
	}()

	select {
	case result := <-done:
		return result
	case <-timer:
		return Result{
			Error:    ErrHandlerTimeout,
			TimedOut: true,
			Duration: time.Since(start),
		}
	}
}
