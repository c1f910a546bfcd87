package api

import (
	"context"
	"fmt"
	"sort"
	"sync"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/logging"
	"github.com/dshills/modhost/internal/plugin/lua"
)

// APIVersion is reported to mods as modhost.api_version.
const APIVersion = 1

// Module represents a Lua API module.
type Module interface {
	// Name returns the module name (e.g., "event", "log").
	Name() string

	// RequiredCapability returns the capability required to use this module.
	// Returns empty string if no capability is required.
	RequiredCapability() lua.Capability

	// Open builds the module table in L.
	Open(L *glua.LState) *glua.LTable
}

// Runner serializes entry into a mod's Lua state. Run must allow nested
// calls made while fn is running on behalf of the same ctx chain.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Context gives API modules access to the host on behalf of one mod.
type Context struct {
	// Mod is the mod's name.
	Mod string

	// State is the mod's Lua state.
	State *lua.State

	// Runner serializes entry into State.
	Runner Runner

	// Bus is the host's event bus.
	Bus *event.Bus

	// Owner owns every registration the mod makes.
	Owner event.Owner

	// Scripts is the mod's source for script events.
	Scripts *event.Emitter[*events.ScriptEvent]

	// Logger receives the mod's log output.
	Logger *logging.Logger
}

// Registry manages API modules and their injection.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates a new API registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name()]; exists {
		return fmt.Errorf("module %q already registered", mod.Name())
	}

	r.modules[mod.Name()] = mod
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.modules[name]
	return mod, ok
}

// List returns all registered module names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Inject makes every module the state's sandbox permits available to
// require. Modules whose capability is not granted are skipped. Returns the
// names of the injected modules.
func (r *Registry) Inject(state *lua.State) ([]string, error) {
	if state == nil || state.IsClosed() {
		return nil, lua.ErrStateClosed
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	L := state.LuaState()
	root := L.NewTable()
	var injected []string

	for _, name := range r.listLocked() {
		mod := r.modules[name]
		if reqCap := mod.RequiredCapability(); reqCap != "" && !state.Sandbox().HasCapability(reqCap) {
			continue
		}

		tbl := mod.Open(L)
		if tbl == nil {
			return injected, fmt.Errorf("module %q opened no table", name)
		}
		L.SetField(root, name, tbl)
		state.PreloadModule(lua.HostModule+"."+name, func(L *glua.LState) int {
			L.Push(tbl)
			return 1
		})
		injected = append(injected, name)
	}

	L.SetField(root, "api_version", glua.LNumber(APIVersion))
	state.PreloadModule(lua.HostModule, func(L *glua.LState) int {
		L.Push(root)
		return 1
	})

	return injected, nil
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry creates a registry with the standard modules for one mod.
func DefaultRegistry(ctx *Context) (*Registry, *EventModule, error) {
	r := NewRegistry()
	ev := NewEventModule(ctx)

	for _, mod := range []Module{NewLogModule(ctx), ev} {
		if err := r.Register(mod); err != nil {
			return nil, nil, fmt.Errorf("failed to register module %q: %w", mod.Name(), err)
		}
	}

	return r, ev, nil
}
