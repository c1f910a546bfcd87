package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
)

func newTestManager(t *testing.T, dir string, mutate ...func(*ManagerConfig)) (*Manager, *event.Bus) {
	t.Helper()
	bus := event.New(event.NewHostID())

	cfg := DefaultManagerConfig()
	cfg.Dir = dir
	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := NewManager(bus, cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() {
		_ = m.UnloadAll(context.Background())
		_ = m.Close()
	})
	return m, bus
}

func TestNewManagerNilBus(t *testing.T) {
	if _, err := NewManager(nil, DefaultManagerConfig()); !errors.Is(err, ErrNilBus) {
		t.Errorf("NewManager(nil) error = %v, want ErrNilBus", err)
	}
}

func TestManagerLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "beta", `x = 1`, "")
	writeMod(t, dir, "alpha", `x = 1`, `{"name": "alpha", "version": "1.2.0"}`)
	writeMod(t, dir, "off", `x = 1`, "")
	if err := os.WriteFile(filepath.Join(dir, "single.lua"), []byte(`x = 1`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, _ := newTestManager(t, dir, func(c *ManagerConfig) {
		c.Disabled = []string{"off"}
	})

	if err := m.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	names := m.Names()
	want := []string{"alpha", "beta", "single"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	for _, h := range m.List() {
		if h.State() != StateActive {
			t.Errorf("%s State() = %v, want active", h.Name(), h.State())
		}
	}

	if err := m.Load(context.Background(), "off"); !errors.Is(err, ErrModDisabled) {
		t.Errorf("Load(off) error = %v, want ErrModDisabled", err)
	}
	if err := m.Load(context.Background(), "alpha"); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Load(alpha) again error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestManagerLoadAllJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "good", `x = 1`, "")
	writeMod(t, dir, "bad", `this is not lua`, "")

	m, _ := newTestManager(t, dir)

	if err := m.LoadAll(context.Background()); err == nil {
		t.Error("LoadAll() should report the broken mod")
	}
	if _, ok := m.Get("good"); !ok {
		t.Error("good mod was not loaded")
	}
	if _, ok := m.Get("bad"); ok {
		t.Error("bad mod was recorded as loaded")
	}
}

func TestManagerLoadNotFound(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir())
	if err := m.Load(context.Background(), "missing"); !errors.Is(err, ErrModNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrModNotFound", err)
	}
}

func TestManagerLifecycleEvents(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "one", `x = 1`, "")

	m, bus := newTestManager(t, dir)

	var seen []string
	h := event.NewHandler("audit", func(ctx context.Context, e events.ModEvent) error {
		seen = append(seen, event.Describe(e))
		return nil
	})
	if _, err := event.RegisterHandler[events.ModEvent](bus, bus.NewOwner("audit"), h); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := m.Load(ctx, "one"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := m.Unload(ctx, "one"); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	want := []string{
		"mod.loading(one@0.0.0)",
		"mod.loaded(one@0.0.0)",
		"mod.unloading(one, requested)",
	}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}

	if err := m.Unload(ctx, "one"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second Unload() error = %v, want ErrNotLoaded", err)
	}
}

func TestManagerGoVeto(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "legacy", `
local event = require("modhost.event")
event.on("host.*", function(e) end)
`, "")

	m, bus := newTestManager(t, dir)

	veto := event.NewHandler("veto", func(ctx context.Context, e *events.ModLoading) error {
		e.Veto("legacy mods are disabled")
		return nil
	})
	if _, err := event.RegisterHandler[*events.ModLoading](bus, bus.NewOwner("policy"), veto); err != nil {
		t.Fatal(err)
	}

	err := m.Load(context.Background(), "legacy")
	if !errors.Is(err, ErrLoadVetoed) {
		t.Fatalf("Load() error = %v, want ErrLoadVetoed", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}

	// Only the manager's and the policy's registrations remain.
	hostStarted, ok := bus.Dispatcher(event.ShapeOf[*events.HostStarted]())
	if ok && hostStarted.HandlerCount() != 0 {
		t.Errorf("host.started has %d handlers after veto", hostStarted.HandlerCount())
	}
}

func TestManagerLuaVeto(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "aaa-gate", `
local event = require("modhost.event")
event.on("mod.loading", function(e)
    if e.mod == "zzz-blocked" then
        e.canceled = true
    end
end)
`, "")
	writeMod(t, dir, "zzz-blocked", `x = 1`, "")

	m, _ := newTestManager(t, dir)

	err := m.LoadAll(context.Background())
	if !errors.Is(err, ErrLoadVetoed) {
		t.Fatalf("LoadAll() error = %v, want ErrLoadVetoed", err)
	}
	if _, ok := m.Get("aaa-gate"); !ok {
		t.Error("gate mod not loaded")
	}
	if _, ok := m.Get("zzz-blocked"); ok {
		t.Error("vetoed mod was loaded")
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	modDir := writeMod(t, dir, "counter", `function version() return 1 end`, "")

	m, bus := newTestManager(t, dir)
	ctx := context.Background()

	if err := m.Load(ctx, "counter"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	before := bus.Stats()

	if err := os.WriteFile(filepath.Join(modDir, DefaultMain), []byte(`function version() return 2 end`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(ctx, "counter"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	h, ok := m.Get("counter")
	if !ok {
		t.Fatal("counter not loaded after Reload")
	}
	out, err := h.Call(ctx, "version")
	if err != nil || len(out) != 1 || out[0] != int64(2) {
		t.Errorf("version() = %v, %v, want [2]", out, err)
	}

	after := bus.Stats()
	if after.Handlers != before.Handlers || after.Sources != before.Sources {
		t.Errorf("registrations leaked across reload: before %+v, after %+v", before, after)
	}
}

func TestManagerReloadRequested(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "hot", `function version() return 1 end`, "")

	m, bus := newTestManager(t, dir)
	ctx := context.Background()

	if err := m.Load(ctx, "hot"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	requests := event.NewEmitter[*events.ModReloadRequested]()
	if _, err := event.RegisterSource[*events.ModReloadRequested](bus, bus.NewOwner("watcher"), requests); err != nil {
		t.Fatal(err)
	}

	var unloading []events.UnloadReason
	h := event.NewHandler("reasons", func(ctx context.Context, e *events.ModUnloading) error {
		unloading = append(unloading, e.Reason)
		return nil
	})
	event.RegisterHandler[*events.ModUnloading](bus, bus.NewOwner("test"), h)

	requests.Publish(ctx, &events.ModReloadRequested{Name: "hot"})
	if len(unloading) != 1 || unloading[0] != events.UnloadReload {
		t.Errorf("unloading reasons = %v, want [reload]", unloading)
	}

	// A vetoed request leaves the mod alone.
	veto := event.NewHandler("veto", func(ctx context.Context, e *events.ModReloadRequested) error {
		e.SetCanceled(true)
		return nil
	})
	event.RegisterHandler[*events.ModReloadRequested](bus, bus.NewOwner("policy"), veto, event.WithPriority(event.PriorityHigh))

	requests.Publish(ctx, &events.ModReloadRequested{Name: "hot"})
	if len(unloading) != 1 {
		t.Errorf("vetoed reload still unloaded: %v", unloading)
	}
}

func TestManagerUnloadAllReverseOrder(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "a", `x = 1`, "")
	writeMod(t, dir, "b", `x = 1`, "")
	writeMod(t, dir, "c", `x = 1`, "")

	m, bus := newTestManager(t, dir)
	ctx := context.Background()

	if err := m.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	var order []string
	h := event.NewHandler("order", func(ctx context.Context, e *events.ModUnloading) error {
		if e.Reason == events.UnloadShutdown {
			order = append(order, e.Name)
		}
		return nil
	})
	event.RegisterHandler[*events.ModUnloading](bus, bus.NewOwner("test"), h)

	if err := m.UnloadAll(ctx); err != nil {
		t.Fatalf("UnloadAll() error = %v", err)
	}
	if len(order) != 3 || order[0] != "c" || order[1] != "b" || order[2] != "a" {
		t.Errorf("unload order = %v, want [c b a]", order)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after UnloadAll", m.Count())
	}
}

func TestManagerModConfig(t *testing.T) {
	dir := t.TempDir()
	writeMod(t, dir, "conf", `
value = nil
function setup(config) value = config.greeting end
function get() return value end
`, `{
    "name": "conf",
    "version": "1.0.0",
    "configSchema": {
        "greeting": {"type": "string", "default": "hello"},
        "count": {"type": "number", "default": 2}
    }
}`)

	m, _ := newTestManager(t, dir, func(c *ManagerConfig) {
		c.Config = map[string]map[string]any{"conf": {"greeting": "hi"}}
	})
	ctx := context.Background()

	if err := m.Load(ctx, "conf"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	h, _ := m.Get("conf")

	out, err := h.Call(ctx, "get")
	if err != nil || len(out) != 1 || out[0] != "hi" {
		t.Errorf("get() = %v, %v, want [hi]", out, err)
	}
	if got := h.Config()["count"]; got != float64(2) {
		t.Errorf("Config()[count] = %v, want default 2", got)
	}
}

func TestManagerCloseRemovesCore(t *testing.T) {
	m, bus := newTestManager(t, t.TempDir())

	if bus.Stats().Sources == 0 || bus.Stats().Handlers == 0 {
		t.Fatalf("manager registered nothing: %+v", bus.Stats())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s := bus.Stats(); s.Sources != 0 || s.Handlers != 0 {
		t.Errorf("Stats() after Close = %+v", s)
	}
}
