package lua

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for Lua state.
const (
	DefaultMemoryLimit      = 10 * 1024 * 1024 // 10 MB (advisory, not enforced by gopher-lua)
	DefaultExecutionTimeout = 5 * time.Second  // Timeout for one top-level call
	DefaultCallLimit        = 100_000          // Maximum host API calls per top-level call
)

// State wraps gopher-lua with sandboxing and bounded execution for mods.
//
// gopher-lua's LState is not goroutine-safe. State does no locking of its
// own: the caller serializes execution. Calls may nest, as when a Lua
// function calls into Go which calls back into Lua; the execution timeout
// and call budget apply to the outermost call.
//
// Memory limits are advisory only. gopher-lua does not provide a mechanism
// to enforce hard memory limits.
type State struct {
	L *lua.LState

	memoryLimit      int64
	executionTimeout time.Duration
	callLimit        int64

	sandbox *Sandbox

	depth  int
	closed atomic.Bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithMemoryLimit sets the memory limit for the Lua state.
// NOTE: This is advisory only - gopher-lua does not enforce memory limits.
func WithMemoryLimit(bytes int64) StateOption {
	return func(s *State) {
		s.memoryLimit = bytes
	}
}

// WithExecutionTimeout bounds each top-level call. Zero disables the bound.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithCallLimit bounds host API calls per top-level call. Zero disables the
// bound.
func WithCallLimit(limit int64) StateOption {
	return func(s *State) {
		s.callLimit = limit
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		memoryLimit:      DefaultMemoryLimit,
		executionTimeout: DefaultExecutionTimeout,
		callLimit:        DefaultCallLimit,
	}

	for _, opt := range opts {
		opt(state)
	}
	if state.memoryLimit < 0 || state.executionTimeout < 0 || state.callLimit < 0 {
		return nil, fmt.Errorf("lua state: negative limit")
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L, state.callLimit)
	state.sandbox.Install()

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os and debug stay closed; the sandbox grants them per capability.
}

// MemoryLimit returns the advisory memory limit in bytes.
func (s *State) MemoryLimit() int64 {
	return s.memoryLimit
}

// ExecutionTimeout returns the bound on each top-level call.
func (s *State) ExecutionTimeout() time.Duration {
	return s.executionTimeout
}

// DoFile executes a Lua file.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.run(ctx, func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes a Lua string.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.run(ctx, func() error {
		return s.L.DoString(code)
	})
}

// Call calls a global Lua function with the given arguments.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(ctx context.Context, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed.Load() {
		return nil, ErrStateClosed
	}
	fnVal := s.L.GetGlobal(fn)
	if fnVal == lua.LNil {
		return nil, fmt.Errorf("function %q not found", fn)
	}
	f, ok := fnVal.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotFunction, fn, fnVal.Type())
	}
	return s.CallFunction(ctx, f, args...)
}

// CallFunction calls a Lua function value with the given arguments.
func (s *State) CallFunction(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.run(ctx, func() error {
		stackTop := s.L.GetTop()

		s.L.Push(fn)
		for _, arg := range args {
			s.L.Push(arg)
		}
		if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return err
		}

		nRet := s.L.GetTop() - stackTop
		results = make([]lua.LValue, 0, max(nRet, 0))
		for i := 0; i < nRet; i++ {
			results = append(results, s.L.Get(stackTop+i+1))
		}
		if nRet > 0 {
			s.L.Pop(nRet)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// HasFunction reports whether the named global is a function.
func (s *State) HasFunction(name string) bool {
	if s.closed.Load() {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// run executes fn with the state's bounds. The outermost call resets the
// call budget and applies the execution timeout; nested calls inherit them.
func (s *State) run(ctx context.Context, fn func() error) (err error) {
	if s.closed.Load() {
		return ErrStateClosed
	}

	if s.depth == 0 {
		s.sandbox.ResetCallCount()
		if s.executionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.executionTimeout)
			defer cancel()
		}
	}

	prev := s.L.Context()
	s.L.SetContext(ctx)
	s.depth++

	defer func() {
		s.depth--
		if prev != nil {
			s.L.SetContext(prev)
		} else {
			s.L.RemoveContext()
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrExecutionTimeout) {
			err = fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
	}()

	return fn()
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.closed.Load() {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	if s.closed.Load() {
		return
	}
	s.L.SetGlobal(name, value)
}

// PreloadModule makes a module available to require under name.
func (s *State) PreloadModule(name string, loader lua.LGFunction) {
	if s.closed.Load() {
		return
	}
	s.L.PreloadModule(name, loader)
}

// LuaState returns the underlying gopher-lua state.
//
// WARNING: Direct access to LState bypasses the execution bounds.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// Sandbox returns the sandbox for capability management.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	return s.closed.Load()
}

// Close releases all resources associated with the Lua state.
// After Close is called, execution methods return ErrStateClosed.
func (s *State) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.L.Close()
	return nil
}
