package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/logging"
	"github.com/dshills/modhost/internal/plugin/api"
	plua "github.com/dshills/modhost/internal/plugin/lua"
)

// Host manages a single mod's Lua state and lifecycle. A Host is the event
// owner of every handler and source the mod registers, so unloading the mod
// is one owner sweep on the bus.
type Host struct {
	// mu guards lifecycle fields. It is never held while Lua runs.
	mu sync.RWMutex

	// luaMu serializes entry into the Lua state; see Run.
	luaMu sync.Mutex

	name     string
	manifest *Manifest
	bus      *event.Bus
	logger   *logging.Logger

	state   *plua.State
	bridge  *plua.Bridge
	events  *api.EventModule
	scripts *event.Emitter[*events.ScriptEvent]
	modules []string

	modState State
	err      error
	config   map[string]any

	memoryLimit      int64
	executionTimeout time.Duration
	callLimit        int64
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostMemoryLimit sets the advisory memory limit for the mod.
func WithHostMemoryLimit(bytes int64) HostOption {
	return func(h *Host) {
		h.memoryLimit = bytes
	}
}

// WithHostExecutionTimeout bounds each call into the mod.
func WithHostExecutionTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		h.executionTimeout = d
	}
}

// WithHostCallLimit bounds host API calls per call into the mod.
func WithHostCallLimit(limit int64) HostOption {
	return func(h *Host) {
		h.callLimit = limit
	}
}

// WithHostConfig overrides configuration values passed to setup.
func WithHostConfig(config map[string]any) HostOption {
	return func(h *Host) {
		for k, v := range config {
			h.config[k] = v
		}
	}
}

// WithHostLogger sets the logger the mod's log module writes to.
func WithHostLogger(logger *logging.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// NewHost creates a host for the mod described by manifest.
func NewHost(manifest *Manifest, bus *event.Bus, opts ...HostOption) (*Host, error) {
	if manifest == nil {
		return nil, ErrNilManifest
	}
	if bus == nil {
		return nil, ErrNilBus
	}

	h := &Host{
		name:             manifest.Name,
		manifest:         manifest,
		bus:              bus,
		logger:           logging.Discard(),
		modState:         StateUnloaded,
		config:           manifest.ConfigDefaults(),
		memoryLimit:      plua.DefaultMemoryLimit,
		executionTimeout: plua.DefaultExecutionTimeout,
		callLimit:        plua.DefaultCallLimit,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// HostID implements event.Owner. A mod belongs to the bus it was created for.
func (h *Host) HostID() event.HostID {
	return h.bus.HostID()
}

// String returns the mod's owner name.
func (h *Host) String() string {
	return "mod:" + h.name
}

// Name returns the mod name.
func (h *Host) Name() string {
	return h.name
}

// Manifest returns the mod manifest.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// State returns the current mod state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.modState
}

// Error returns the error that put the mod in StateError.
func (h *Host) Error() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Config returns a copy of the configuration passed to setup.
func (h *Host) Config() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	config := make(map[string]any, len(h.config))
	for k, v := range h.config {
		config[k] = v
	}
	return config
}

// Modules returns the API modules injected into the mod's state.
func (h *Host) Modules() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.modules...)
}

// Scripts returns the mod's script event source, or nil when unloaded.
func (h *Host) Scripts() *event.Emitter[*events.ScriptEvent] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scripts
}

type heldKey struct{}

// held is the set of hosts whose Lua lock a call chain holds.
type held struct {
	host *Host
	next *held
}

// Run serializes fn against every other entry into the mod's Lua state.
// Calls made on behalf of a chain that already holds the lock, such as a
// handler reached through the mod's own emit, run without waiting.
func (h *Host) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	top, _ := ctx.Value(heldKey{}).(*held)
	for l := top; l != nil; l = l.next {
		if l.host == h {
			return fn(ctx)
		}
	}

	h.luaMu.Lock()
	defer h.luaMu.Unlock()
	return fn(context.WithValue(ctx, heldKey{}, &held{host: h, next: top}))
}

// Load creates the Lua state, wires the mod into the bus and runs its main
// file. On failure every registration the main file made is removed.
func (h *Host) Load(ctx context.Context) error {
	h.mu.RLock()
	st := h.modState
	h.mu.RUnlock()
	if st != StateUnloaded && st != StateError {
		return ErrAlreadyLoaded
	}
	if st == StateError {
		_ = h.teardown(ctx)
	}

	state, err := plua.NewState(
		plua.WithMemoryLimit(h.memoryLimit),
		plua.WithExecutionTimeout(h.executionTimeout),
		plua.WithCallLimit(h.callLimit),
	)
	if err != nil {
		h.fail(err)
		return err
	}

	for _, c := range h.manifest.Capabilities {
		state.Sandbox().Grant(c)
	}

	scripts := event.NewEmitter[*events.ScriptEvent]()
	registry, eventModule, err := api.DefaultRegistry(&api.Context{
		Mod:     h.name,
		State:   state,
		Runner:  h,
		Bus:     h.bus,
		Owner:   h,
		Scripts: scripts,
		Logger:  h.logger,
	})
	if err != nil {
		state.Close()
		h.fail(err)
		return err
	}
	modules, err := registry.Inject(state)
	if err != nil {
		state.Close()
		h.fail(err)
		return err
	}

	if _, err := event.RegisterSource[*events.ScriptEvent](h.bus, h, scripts); err != nil {
		state.Close()
		err = fmt.Errorf("register script source: %w", err)
		h.fail(err)
		return err
	}

	h.mu.Lock()
	h.state = state
	h.bridge = plua.NewBridge(state.LuaState())
	h.events = eventModule
	h.scripts = scripts
	h.modules = modules
	h.mu.Unlock()

	err = h.Run(ctx, func(ctx context.Context) error {
		return state.DoFile(ctx, h.manifest.MainPath())
	})
	if err != nil {
		err = fmt.Errorf("failed to load mod: %w", err)
		_ = h.teardown(ctx)
		h.fail(err)
		return err
	}

	h.mu.Lock()
	h.modState = StateLoaded
	h.err = nil
	h.mu.Unlock()
	return nil
}

// Activate calls the mod's setup(config) and activate() functions.
func (h *Host) Activate(ctx context.Context) error {
	h.mu.Lock()
	if h.modState != StateLoaded {
		h.mu.Unlock()
		return ErrNotLoaded
	}
	h.modState = StateActivating
	config := make(map[string]any, len(h.config))
	for k, v := range h.config {
		config[k] = v
	}
	h.mu.Unlock()

	err := h.callOptional(ctx, "setup", config)
	if err == nil {
		err = h.callOptional(ctx, "activate")
	}
	if err != nil {
		h.fail(err)
		return err
	}

	h.mu.Lock()
	h.modState = StateActive
	h.err = nil
	h.mu.Unlock()
	return nil
}

// Deactivate calls the mod's deactivate function. The mod stays loaded.
func (h *Host) Deactivate(ctx context.Context) error {
	h.mu.Lock()
	if h.modState != StateActive {
		h.mu.Unlock()
		return nil
	}
	h.modState = StateDeactivating
	h.mu.Unlock()

	err := h.callOptional(ctx, "deactivate")

	h.mu.Lock()
	h.modState = StateLoaded
	if err != nil {
		h.err = err
	}
	h.mu.Unlock()
	return err
}

// Unload deactivates the mod, removes everything it registered on the bus
// and closes its Lua state.
func (h *Host) Unload(ctx context.Context) error {
	h.mu.RLock()
	st := h.modState
	h.mu.RUnlock()

	if st == StateUnloaded {
		return nil
	}

	var errs []error
	if st == StateActive {
		if err := h.Deactivate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.teardown(ctx); err != nil {
		errs = append(errs, err)
	}

	h.mu.Lock()
	h.modState = StateUnloaded
	h.err = nil
	h.mu.Unlock()

	return errors.Join(errs...)
}

// teardown removes the mod from the bus and releases its Lua state. It is a
// no-op once the state is gone.
func (h *Host) teardown(ctx context.Context) error {
	h.mu.Lock()
	state, eventModule := h.state, h.events
	h.state, h.bridge, h.events, h.scripts, h.modules = nil, nil, nil, nil, nil
	h.mu.Unlock()

	if state == nil {
		return nil
	}

	if eventModule != nil {
		eventModule.Cleanup()
	}
	err := h.bus.UnregisterOwner(h)

	_ = h.Run(ctx, func(context.Context) error {
		return state.Close()
	})
	return err
}

// Call calls a global Lua function in the mod.
func (h *Host) Call(ctx context.Context, fn string, args ...any) ([]any, error) {
	h.mu.RLock()
	state, bridge := h.state, h.bridge
	h.mu.RUnlock()

	if state == nil {
		return nil, ErrNotLoaded
	}

	var out []any
	err := h.Run(ctx, func(ctx context.Context) error {
		luaArgs := make([]glua.LValue, len(args))
		for i, arg := range args {
			luaArgs[i] = bridge.ToLuaValue(arg)
		}

		results, err := state.Call(ctx, fn, luaArgs...)
		if err != nil {
			return err
		}

		out = make([]any, len(results))
		for i, r := range results {
			out[i] = bridge.ToGoValue(r)
		}
		return nil
	})
	return out, err
}

// HasFunction returns true if the mod defines the named global function.
func (h *Host) HasFunction(name string) bool {
	h.mu.RLock()
	state := h.state
	h.mu.RUnlock()

	if state == nil {
		return false
	}
	var ok bool
	_ = h.Run(context.Background(), func(context.Context) error {
		ok = state.HasFunction(name)
		return nil
	})
	return ok
}

// callOptional calls fn if the mod defines it.
func (h *Host) callOptional(ctx context.Context, fn string, args ...any) error {
	if !h.HasFunction(fn) {
		return nil
	}
	if _, err := h.Call(ctx, fn, args...); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

func (h *Host) fail(err error) {
	h.mu.Lock()
	h.modState = StateError
	h.err = err
	h.mu.Unlock()
}

// Stats returns runtime statistics for the mod.
func (h *Host) Stats() HostStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HostStats{
		Name:     h.name,
		State:    h.modState,
		Modules:  len(h.modules),
		HasError: h.err != nil,
	}
	if h.events != nil {
		stats.Subscriptions = h.events.Subscriptions()
	}
	if h.scripts != nil {
		stats.ScriptListeners = h.scripts.Listeners()
	}
	return stats
}

// HostStats contains runtime statistics for a mod host.
type HostStats struct {
	Name            string
	State           State
	Modules         int
	Subscriptions   int
	// ScriptListeners counts the bus links on the scripts emitter; one per
	// registration, however long the fan-out chain.
	ScriptListeners int
	HasError        bool
}
