package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrHandlerTimeout is returned when an awaited handler does not finish
	// within its timeout.
	ErrHandlerTimeout = errors.New("handler timed out")

	// ErrNilHandler is returned when Invoke is called without a handler.
	ErrNilHandler = errors.New("nil handler")
)
