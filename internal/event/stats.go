package event

import "sync/atomic"

// Stats contains bus statistics.
type Stats struct {
	// Dispatchers is the number of dispatchers created.
	Dispatchers int64

	// Handlers is the number of handler entries across all dispatchers,
	// proxies included.
	Handlers int64

	// Sources is the number of source subscriptions across all dispatchers.
	Sources int64

	// Proxies is the number of cached base-shape proxies.
	Proxies int

	// Notifications is the number of dispatcher loops run.
	Notifications uint64

	// Invoked is the number of handler invocations.
	Invoked uint64

	// Skipped is the number of handlers passed over for canceled occurrences.
	Skipped uint64

	// Failed is the number of handlers that returned an error.
	Failed uint64

	// Panicked is the number of handlers that panicked.
	Panicked uint64

	// TimedOut is the number of awaited handlers that exceeded their timeout.
	TimedOut uint64
}

type busStats struct {
	dispatchers   atomic.Int64
	handlers      atomic.Int64
	sources       atomic.Int64
	notifications atomic.Uint64
	invoked       atomic.Uint64
	skipped       atomic.Uint64
	failed        atomic.Uint64
	panicked      atomic.Uint64
	timedOut      atomic.Uint64
}

func (s *busStats) snapshot() Stats {
	return Stats{
		Dispatchers:   s.dispatchers.Load(),
		Handlers:      s.handlers.Load(),
		Sources:       s.sources.Load(),
		Notifications: s.notifications.Load(),
		Invoked:       s.invoked.Load(),
		Skipped:       s.skipped.Load(),
		Failed:        s.failed.Load(),
		Panicked:      s.panicked.Load(),
		TimedOut:      s.timedOut.Load(),
	}
}
