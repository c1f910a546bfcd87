package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a call runs past the execution timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrCallLimit is returned when a call makes too many host API calls.
	ErrCallLimit = errors.New("lua host call limit exceeded")

	// ErrNotFunction is returned when calling a global that is not a function.
	ErrNotFunction = errors.New("lua value is not a function")
)
