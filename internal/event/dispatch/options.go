package dispatch

import "time"

// Option configures an invoker.
type Option func(*config)

type config struct {
	panicHandler PanicHandler
	timeout      time.Duration
}

func newConfig(opts []Option) config {
	cfg := config{panicHandler: defaultPanicHandler}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithPanicHandler sets the panic handler for the invoker.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) {
		if h != nil {
			c.panicHandler = h
		}
	}
}

// WithTimeout sets the default timeout for awaited handlers.
// Zero means no timeout. Ignored by SyncInvoker.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}
