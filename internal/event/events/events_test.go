package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/topic"
)

func TestDeclaredShapes(t *testing.T) {
	tests := []struct {
		name    topic.Topic
		shape   event.ShapeID
		variant event.Variant
		chain   int
	}{
		{TopicModLoading, event.ShapeOf[*ModLoading](), event.SyncCancelable, 2},
		{TopicModLoaded, event.ShapeOf[*ModLoaded](), event.Sync, 2},
		{TopicModUnloading, event.ShapeOf[*ModUnloading](), event.Sync, 2},
		{TopicModReload, event.ShapeOf[*ModReloadRequested](), event.AsyncCancelable, 2},
		{TopicModScript, event.ShapeOf[*ScriptEvent](), event.SyncCancelable, 2},
		{TopicHostStarted, event.ShapeOf[*HostStarted](), event.Sync, 2},
		{TopicHostStopping, event.ShapeOf[*HostStopping](), event.Async, 2},
		{TopicMod, event.ShapeOf[ModEvent](), event.Sync, 1},
		{TopicHost, event.ShapeOf[HostEvent](), event.Sync, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name.String(), func(t *testing.T) {
			shape, ok := event.ShapeNamed(tt.name)
			if !ok || shape != tt.shape {
				t.Fatalf("ShapeNamed(%q) = %v, %v", tt.name, shape, ok)
			}
			v, err := event.Classify(shape)
			if err != nil || v != tt.variant {
				t.Errorf("Classify() = %v, %v, want %v", v, err, tt.variant)
			}
			chain, err := event.FanOutChain(shape)
			if err != nil || len(chain) != tt.chain {
				t.Errorf("FanOutChain() = %v, %v, want %d shapes", chain, err, tt.chain)
			}
		})
	}
}

func TestModPatternSelectsLifecycle(t *testing.T) {
	got := topic.Select(event.Names(), "mod.*")
	want := []topic.Topic{TopicModLoaded, TopicModLoading, TopicModReload, TopicModScript, TopicModUnloading}
	if len(got) != len(want) {
		t.Fatalf("Select(mod.*) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Select(mod.*)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestModEventBaseSeesLifecycle(t *testing.T) {
	bus := event.New(event.NewHostID())
	owner := bus.NewOwner("test")

	var seen []string
	h := event.NewHandler("audit", func(ctx context.Context, e ModEvent) error {
		seen = append(seen, e.ModName())
		return nil
	})
	if _, err := event.RegisterHandler[ModEvent](bus, owner, h); err != nil {
		t.Fatal(err)
	}

	loading := event.NewEmitter[*ModLoading]()
	unloading := event.NewEmitter[*ModUnloading]()
	event.RegisterSource[*ModLoading](bus, owner, loading)
	event.RegisterSource[*ModUnloading](bus, owner, unloading)

	loading.Publish(context.Background(), &ModLoading{Name: "a"})
	unloading.Publish(context.Background(), &ModUnloading{Name: "b"})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("seen = %v, want [a b]", seen)
	}
}

func TestModLoading_Veto(t *testing.T) {
	e := &ModLoading{Name: "x", Version: "1.0.0"}
	e.Veto("nope")
	if !e.IsCanceled() || e.Reason != "nope" {
		t.Errorf("Veto() left canceled=%v reason=%q", e.IsCanceled(), e.Reason)
	}
	if got := e.Fields()["reason"]; got != "nope" {
		t.Errorf("Fields()[reason] = %v", got)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		occ  any
		want string
	}{
		{&ModLoading{Name: "a", Version: "1"}, "mod.loading(a@1)"},
		{&ModLoaded{Name: "a", Version: "1"}, "mod.loaded(a@1)"},
		{&ModUnloading{Name: "a", Reason: UnloadReload}, "mod.unloading(a, reload)"},
		{&ModReloadRequested{Name: "a", Changed: []string{"init.lua"}}, "mod.reload(a: init.lua)"},
		{&ScriptEvent{Mod: "a", Name: "greet"}, "mod.script(greet from a)"},
		{&HostStarted{Mods: []string{"a"}}, "host.started(1 mods)"},
		{&HostStopping{Reason: "signal"}, "host.stopping(signal)"},
	}

	for _, tt := range tests {
		if got := event.Describe(tt.occ); got != tt.want {
			t.Errorf("Describe(%T) = %q, want %q", tt.occ, got, tt.want)
		}
	}
}

func TestFields(t *testing.T) {
	at := time.Unix(100, 0)
	f := (&HostStarted{At: at, Mods: []string{"a", "b"}}).Fields()
	if f["at"] != int64(100) {
		t.Errorf("Fields()[at] = %v", f["at"])
	}
	if mods, ok := f["mods"].([]any); !ok || len(mods) != 2 {
		t.Errorf("Fields()[mods] = %v", f["mods"])
	}

	r := (&ModReloadRequested{Name: "m", Changed: []string{"a.lua"}}).Fields()
	if changed, ok := r["changed"].([]any); !ok || !strings.HasSuffix(changed[0].(string), "a.lua") {
		t.Errorf("Fields()[changed] = %v", r["changed"])
	}
}
