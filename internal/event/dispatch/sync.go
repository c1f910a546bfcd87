package dispatch

import (
	"context"
	"sync/atomic"
	"time"
)

// counters holds the atomic statistics shared by both invokers.
type counters struct {
	invoked     atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	timedOut    atomic.Uint64
	skipped     atomic.Uint64
	totalTimeNs atomic.Int64
}

func (c *counters) record(result Result) {
	c.invoked.Add(1)
	c.totalTimeNs.Add(result.Duration.Nanoseconds())

	switch {
	case result.Skipped:
		c.skipped.Add(1)
	case result.TimedOut:
		c.timedOut.Add(1)
	case result.Panicked:
		c.panicked.Add(1)
	case result.Error != nil:
		c.failed.Add(1)
	case result.Success:
		c.succeeded.Add(1)
	}
}

// Stats returns a snapshot of the counters.
// Values are read without a mutex, so they may be slightly inconsistent
// while invocations are in flight.
func (c *counters) Stats() Stats {
	return Stats{
		Invoked:       c.invoked.Load(),
		Succeeded:     c.succeeded.Load(),
		Failed:        c.failed.Load(),
		Panicked:      c.panicked.Load(),
		TimedOut:      c.timedOut.Load(),
		Skipped:       c.skipped.Load(),
		TotalDuration: time.Duration(c.totalTimeNs.Load()),
	}
}

// ResetStats resets all statistics to zero.
func (c *counters) ResetStats() {
	c.invoked.Store(0)
	c.succeeded.Store(0)
	c.failed.Store(0)
	c.panicked.Store(0)
	c.timedOut.Store(0)
	c.skipped.Store(0)
	c.totalTimeNs.Store(0)
}

// SyncInvoker executes handlers synchronously in the caller's goroutine.
// It provides panic recovery and context support.
type SyncInvoker struct {
	counters
	executor *Executor
}

// NewSyncInvoker creates a new synchronous invoker.
func NewSyncInvoker(opts ...Option) *SyncInvoker {
	cfg := newConfig(opts)
	return &SyncInvoker{
		executor: NewExecutor(WithExecutorPanicHandler(cfg.panicHandler)),
	}
}

// Invoke executes a handler synchronously with the given event.
// It blocks until the handler returns or panics.
func (s *SyncInvoker) Invoke(ctx context.Context, event any, handler Handler) Result {
	result := s.executor.Execute(ctx, event, handler)
	s.record(result)
	return result
}
