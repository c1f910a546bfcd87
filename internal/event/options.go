package event

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	logger       Logger
	tracer       trace.Tracer
	asyncTimeout time.Duration
}

func defaultBusConfig() busConfig {
	return busConfig{
		logger: NopLogger{},
	}
}

// WithLogger sets the logger receiving skip traces and handler failures.
func WithLogger(l Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for dispatch spans. The default is the
// global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) BusOption {
	return func(c *busConfig) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithAsyncTimeout bounds each awaited handler of an async shape. Zero, the
// default, waits indefinitely.
func WithAsyncTimeout(timeout time.Duration) BusOption {
	return func(c *busConfig) {
		if timeout >= 0 {
			c.asyncTimeout = timeout
		}
	}
}

// HandlerOption configures one handler registration.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	name     string
	priority Priority
	skip     bool
	timeout  time.Duration
}

// WithPriority sets the handler's priority. Higher runs first.
func WithPriority(p Priority) HandlerOption {
	return func(c *handlerConfig) {
		c.priority = p
	}
}

// WithSkipIfCanceled makes the handler sit out occurrences that an earlier
// handler canceled. Only consulted for cancelable shapes.
func WithSkipIfCanceled(skip bool) HandlerOption {
	return func(c *handlerConfig) {
		c.skip = skip
	}
}

// WithName overrides the handler's name used for ordering and logging.
func WithName(name string) HandlerOption {
	return func(c *handlerConfig) {
		c.name = name
	}
}

// WithHandlerTimeout overrides the bus async timeout for this handler.
func WithHandlerTimeout(timeout time.Duration) HandlerOption {
	return func(c *handlerConfig) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}
