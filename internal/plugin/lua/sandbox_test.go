package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestSandboxRequire(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		grant   []Capability
		wantErr bool
	}{
		{"builtin", `local s = require("string")`, nil, false},
		{"unknown", `local s = require("socket")`, nil, true},
		{"os without capability", `local o = require("os")`, nil, true},
		{"os with env", `local o = require("os")`, []Capability{CapabilityEnv}, false},
		{"io with file read", `local f = require("io")`, []Capability{CapabilityFileRead}, false},
		{"debug without unsafe", `local d = require("debug")`, []Capability{CapabilityEnv}, true},
		{"missing host module", `local m = require("modhost.nothing")`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newTestState(t)
			for _, c := range tt.grant {
				state.Sandbox().Grant(c)
			}
			err := state.DoString(context.Background(), tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("DoString(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestSandboxCapabilities(t *testing.T) {
	state := newTestState(t)
	sb := state.Sandbox()

	if sb.HasCapability(CapabilityEvent) {
		t.Error("HasCapability(event) = true before Grant")
	}
	var capErr *CapabilityError
	if err := sb.CheckCapability(CapabilityEvent); !errors.As(err, &capErr) || capErr.Capability != CapabilityEvent {
		t.Errorf("CheckCapability() error = %v, want CapabilityError", err)
	}

	sb.Grant(CapabilityEvent)
	sb.Grant(CapabilityEnv)
	sb.Grant(CapabilityEnv)

	if err := sb.CheckCapability(CapabilityEvent); err != nil {
		t.Errorf("CheckCapability() after Grant error = %v", err)
	}
	caps := sb.Capabilities()
	if len(caps) != 2 || caps[0] != CapabilityEnv || caps[1] != CapabilityEvent {
		t.Errorf("Capabilities() = %v, want [env event]", caps)
	}

	sb.Revoke(CapabilityEvent)
	if sb.HasCapability(CapabilityEvent) {
		t.Error("HasCapability(event) = true after Revoke")
	}
}

func TestCapabilityIsKnown(t *testing.T) {
	for _, c := range KnownCapabilities() {
		if !c.IsKnown() {
			t.Errorf("%q.IsKnown() = false", c)
		}
	}
	if Capability("shell").IsKnown() {
		t.Error(`"shell".IsKnown() = true`)
	}
	if got := (&CapabilityError{Capability: CapabilityEnv}).Error(); got != "capability not granted: env" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSandboxCallLimit(t *testing.T) {
	sb := NewSandbox(glua.NewState(), 2)
	defer sb.L.Close()

	if sb.CountCall() || sb.CountCall() {
		t.Fatal("CountCall() exceeded within budget")
	}
	if !sb.CountCall() {
		t.Error("CountCall() = false past budget")
	}
	if sb.CallCount() != 3 {
		t.Errorf("CallCount() = %d, want 3", sb.CallCount())
	}

	sb.ResetCallCount()
	if sb.CallCount() != 0 {
		t.Errorf("CallCount() after reset = %d", sb.CallCount())
	}

	unlimited := NewSandbox(sb.L, 0)
	for i := 0; i < 10; i++ {
		if unlimited.CountCall() {
			t.Fatal("CountCall() with no limit reported exceeded")
		}
	}
}

func TestSandboxFileRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte("one\r\ntwo\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	state := newTestState(t)
	state.Sandbox().Grant(CapabilityFileRead)
	state.SetGlobal("path", glua.LString(path))

	code := `
content = io.read(path)
count = 0
for line in io.lines(path) do
  count = count + 1
  last = line
end
missing, msg = io.read(path .. ".nope")
`
	if err := state.DoString(context.Background(), code); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := state.GetGlobal("content"); got != glua.LString("one\r\ntwo\nthree") {
		t.Errorf("content = %q", got)
	}
	if got := state.GetGlobal("count"); got != glua.LNumber(3) {
		t.Errorf("count = %v, want 3", got)
	}
	if got := state.GetGlobal("last"); got != glua.LString("three") {
		t.Errorf("last = %v, want three", got)
	}
	if state.GetGlobal("missing") != glua.LNil || state.GetGlobal("msg") == glua.LNil {
		t.Error("io.read of missing file should return nil, message")
	}
}

func TestSandboxEnv(t *testing.T) {
	t.Setenv("MODHOST_SANDBOX_TEST", "hello")

	state := newTestState(t)
	state.Sandbox().Grant(CapabilityEnv)

	code := `
value = os.getenv("MODHOST_SANDBOX_TEST")
unset = os.getenv("MODHOST_SANDBOX_UNSET")
now = os.time()
`
	if err := state.DoString(context.Background(), code); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := state.GetGlobal("value"); got != glua.LString("hello") {
		t.Errorf("value = %v, want hello", got)
	}
	if state.GetGlobal("unset") != glua.LNil {
		t.Error("unset env var should be nil")
	}
	if n, ok := state.GetGlobal("now").(glua.LNumber); !ok || n <= 0 {
		t.Errorf("os.time() = %v", state.GetGlobal("now"))
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("a\r\nb\n\nc")
	want := []string{"a", "b", "", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitLines() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitLines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
