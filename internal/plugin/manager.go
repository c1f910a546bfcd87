package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/logging"
	plua "github.com/dshills/modhost/internal/plugin/lua"
)

// Manager discovers, loads and tracks the mods of one host.
//
// The manager raises the mod lifecycle events on the bus as the "core"
// owner and listens for mod.reload requests so a file watcher can drive
// reloads without knowing about hosts.
type Manager struct {
	mu sync.RWMutex

	bus    *event.Bus
	owner  *event.NamedOwner
	loader *Loader
	config ManagerConfig
	logger *logging.Logger

	hosts     map[string]*Host
	loadOrder []string

	loading   *event.Emitter[*events.ModLoading]
	loaded    *event.Emitter[*events.ModLoaded]
	unloading *event.Emitter[*events.ModUnloading]
	reload    *event.FuncHandler[*events.ModReloadRequested]
}

// ManagerConfig configures the mod manager.
type ManagerConfig struct {
	// Dir is the mods directory.
	Dir string

	// AutoActivate activates mods as soon as they load.
	AutoActivate bool

	// Disabled lists mods that are never loaded.
	Disabled []string

	// MemoryLimit is the advisory memory limit per mod.
	MemoryLimit int64

	// ExecTimeout bounds each call into a mod.
	ExecTimeout time.Duration

	// CallLimit bounds host API calls per call into a mod.
	CallLimit int64

	// Config holds per-mod configuration overrides keyed by mod name.
	Config map[string]map[string]any
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Dir:          "mods",
		AutoActivate: true,
		MemoryLimit:  plua.DefaultMemoryLimit,
		ExecTimeout:  plua.DefaultExecutionTimeout,
		CallLimit:    plua.DefaultCallLimit,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a mod manager on bus.
func NewManager(bus *event.Bus, cfg ManagerConfig, opts ...ManagerOption) (*Manager, error) {
	if bus == nil {
		return nil, ErrNilBus
	}

	m := &Manager{
		bus:       bus,
		owner:     bus.NewOwner("core"),
		loader:    NewLoader(cfg.Dir),
		config:    cfg,
		logger:    logging.Discard(),
		hosts:     make(map[string]*Host),
		loading:   event.NewEmitter[*events.ModLoading](),
		loaded:    event.NewEmitter[*events.ModLoaded](),
		unloading: event.NewEmitter[*events.ModUnloading](),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("mods")

	if _, err := event.RegisterSource[*events.ModLoading](bus, m.owner, m.loading); err != nil {
		return nil, err
	}
	if _, err := event.RegisterSource[*events.ModLoaded](bus, m.owner, m.loaded); err != nil {
		_ = bus.UnregisterOwner(m.owner)
		return nil, err
	}
	if _, err := event.RegisterSource[*events.ModUnloading](bus, m.owner, m.unloading); err != nil {
		_ = bus.UnregisterOwner(m.owner)
		return nil, err
	}

	m.reload = event.NewHandler("manager.reload", m.handleReload)
	if _, err := event.RegisterHandler[*events.ModReloadRequested](bus, m.owner, m.reload,
		event.WithPriority(event.PriorityLow),
		event.WithSkipIfCanceled(true),
	); err != nil {
		_ = bus.UnregisterOwner(m.owner)
		return nil, err
	}

	return m, nil
}

// Owner returns the owner the manager registers under.
func (m *Manager) Owner() event.Owner {
	return m.owner
}

// Loader returns the manager's mod loader.
func (m *Manager) Loader() *Loader {
	return m.loader
}

// IsDisabled reports whether name is listed as disabled.
func (m *Manager) IsDisabled(name string) bool {
	for _, d := range m.config.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// Load loads the named mod. Handlers of mod.loading may veto the load,
// in which case the mod is torn down and ErrLoadVetoed is returned.
func (m *Manager) Load(ctx context.Context, name string) error {
	if m.IsDisabled(name) {
		return fmt.Errorf("%w: %s", ErrModDisabled, name)
	}

	m.mu.RLock()
	_, exists := m.hosts[name]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}

	info, err := m.loader.Find(name)
	if err != nil {
		return err
	}
	return m.load(ctx, info)
}

func (m *Manager) load(ctx context.Context, info *ModInfo) error {
	name := info.Manifest.Name
	if m.IsDisabled(name) {
		return fmt.Errorf("%w: %s", ErrModDisabled, name)
	}
	if _, ok := m.Get(name); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}

	host, err := NewHost(info.Manifest, m.bus,
		WithHostMemoryLimit(m.config.MemoryLimit),
		WithHostExecutionTimeout(m.config.ExecTimeout),
		WithHostCallLimit(m.config.CallLimit),
		WithHostConfig(m.config.Config[name]),
		WithHostLogger(m.logger.WithField("mod", name)),
	)
	if err != nil {
		return err
	}

	if err := host.Load(ctx); err != nil {
		m.logger.Error("load %s: %v", name, err)
		return err
	}

	evt := &events.ModLoading{
		Name:    info.Manifest.Name,
		Version: info.Manifest.Version,
		Path:    info.Manifest.Path(),
	}
	m.loading.Publish(ctx, evt)
	if evt.IsCanceled() {
		_ = host.Unload(ctx)
		m.logger.Warn("load of %s vetoed: %s", name, evt.Reason)
		return fmt.Errorf("%w: %s: %s", ErrLoadVetoed, name, evt.Reason)
	}

	m.mu.Lock()
	if _, exists := m.hosts[name]; exists {
		m.mu.Unlock()
		_ = host.Unload(ctx)
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}
	m.hosts[name] = host
	m.loadOrder = append(m.loadOrder, name)
	m.mu.Unlock()

	if m.config.AutoActivate {
		if err := host.Activate(ctx); err != nil {
			m.logger.Error("activate %s: %v", name, err)
		}
	}

	m.loaded.Publish(ctx, &events.ModLoaded{
		Name:    info.Manifest.Name,
		Version: info.Manifest.Version,
	})
	m.logger.Info("loaded %s", info.Manifest)
	return nil
}

// LoadAll discovers and loads every mod that is not disabled. Errors of
// individual mods are joined; the remaining mods still load.
func (m *Manager) LoadAll(ctx context.Context) error {
	mods, err := m.loader.Discover()
	if err != nil {
		return err
	}

	var errs []error
	for _, info := range mods {
		if m.IsDisabled(info.Name) {
			m.logger.Debug("skipping disabled mod %s", info.Name)
			continue
		}
		if info.Err != nil {
			errs = append(errs, fmt.Errorf("mod %q: %w", info.Name, info.Err))
			continue
		}
		if _, ok := m.Get(info.Name); ok {
			continue
		}
		if err := m.load(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unload unloads the named mod.
func (m *Manager) Unload(ctx context.Context, name string) error {
	return m.unload(ctx, name, events.UnloadRequested)
}

func (m *Manager) unload(ctx context.Context, name string, reason events.UnloadReason) error {
	m.mu.Lock()
	host, ok := m.hosts[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	delete(m.hosts, name)
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i:i], m.loadOrder[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.unloading.Publish(ctx, &events.ModUnloading{Name: name, Reason: reason})

	err := host.Unload(ctx)
	if err != nil {
		m.logger.Warn("unload %s: %v", name, err)
	}
	m.logger.Info("unloaded %s (%s)", name, reason)
	return err
}

// UnloadAll unloads every mod in reverse load order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.unload(ctx, order[i], events.UnloadShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload unloads and loads the named mod.
func (m *Manager) Reload(ctx context.Context, name string) error {
	if err := m.unload(ctx, name, events.UnloadReload); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}
	return m.Load(ctx, name)
}

// handleReload reloads the mod named by a reload request, loads it if it
// is new, or unloads it if its files are gone or no longer valid.
func (m *Manager) handleReload(ctx context.Context, evt *events.ModReloadRequested) error {
	info, err := m.loader.Find(evt.Name)
	if err != nil {
		if _, ok := m.Get(evt.Name); ok {
			m.logger.Warn("reload %s: %v", evt.Name, err)
			return m.unload(ctx, evt.Name, events.UnloadRequested)
		}
		return nil
	}

	name := info.Manifest.Name
	if m.IsDisabled(name) {
		return nil
	}
	if _, ok := m.Get(name); ok {
		if err := m.unload(ctx, name, events.UnloadReload); err != nil && !errors.Is(err, ErrNotLoaded) {
			return err
		}
	}
	return m.load(ctx, info)
}

// Get returns the host of a loaded mod.
func (m *Manager) Get(name string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hosts[name]
	return h, ok
}

// List returns the loaded mods in load order.
func (m *Manager) List() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hosts := make([]*Host, 0, len(m.loadOrder))
	for _, name := range m.loadOrder {
		hosts = append(hosts, m.hosts[name])
	}
	return hosts
}

// Names returns the names of the loaded mods, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.hosts))
	for name := range m.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded mods.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts)
}

// Stats returns statistics for every loaded mod in load order.
func (m *Manager) Stats() []HostStats {
	hosts := m.List()
	stats := make([]HostStats, len(hosts))
	for i, h := range hosts {
		stats[i] = h.Stats()
	}
	return stats
}

// Close removes the manager's own sources and handlers from the bus. Mods
// must be unloaded first.
func (m *Manager) Close() error {
	return m.bus.UnregisterOwner(m.owner)
}
