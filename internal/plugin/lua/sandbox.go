package lua

import (
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// HostModule is the name of the host's preloaded Lua module. Its submodules
// are named HostModule + "." + name.
const HostModule = "modhost"

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	callLimit int64
	callCount int64

	capabilities map[Capability]bool
}

// Capability represents a permission that can be granted to mods.
type Capability string

// Available capabilities.
const (
	CapabilityEvent    Capability = "event"           // modhost.event
	CapabilityFileRead Capability = "filesystem.read" // read-only io
	CapabilityEnv      Capability = "env"             // os.getenv, os.time, os.clock
	CapabilityUnsafe   Capability = "unsafe"          // Full Lua stdlib access
)

// KnownCapabilities returns every capability a mod may request.
func KnownCapabilities() []Capability {
	return []Capability{CapabilityEvent, CapabilityFileRead, CapabilityEnv, CapabilityUnsafe}
}

// IsKnown reports whether c is a capability the host understands.
func (c Capability) IsKnown() bool {
	for _, k := range KnownCapabilities() {
		if c == k {
			return true
		}
	}
	return false
}

// NewSandbox creates a new sandbox for the Lua state. A callLimit of zero
// disables the host call budget.
func NewSandbox(L *lua.LState, callLimit int64) *Sandbox {
	return &Sandbox{
		L:            L,
		callLimit:    callLimit,
		capabilities: make(map[Capability]bool),
	}
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// installSafeRequire replaces require with a version that only resolves
// built-in safe modules, host modules registered with PreloadModule, and
// capability-gated globals.
func (s *Sandbox) installSafeRequire() {
	if pkgTable, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkgTable, "path", lua.LString(""))
		s.L.SetField(pkgTable, "cpath", lua.LString(""))
	}

	safeModules := map[string]bool{
		"string": true,
		"table":  true,
		"math":   true,
	}

	originalRequire := s.L.GetGlobal("require")

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)

		if safeModules[modName] || modName == HostModule || strings.HasPrefix(modName, HostModule+".") {
			L.Push(originalRequire)
			L.Push(lua.LString(modName))
			L.Call(1, 1)
			return 1
		}

		var granted bool
		switch modName {
		case "io":
			granted = s.capabilities[CapabilityFileRead] || s.capabilities[CapabilityUnsafe]
		case "os":
			granted = s.capabilities[CapabilityEnv] || s.capabilities[CapabilityUnsafe]
		case "debug":
			granted = s.capabilities[CapabilityUnsafe]
		default:
			L.RaiseError("module %q is not available", modName)
			return 0
		}
		if !granted {
			L.RaiseError("module %q requires a capability the mod was not granted", modName)
			return 0
		}
		L.Push(L.GetGlobal(modName))
		return 1
	}))
}

// ResetCallCount resets the host call counter.
func (s *Sandbox) ResetCallCount() {
	atomic.StoreInt64(&s.callCount, 0)
}

// CallCount returns the current host call count.
func (s *Sandbox) CallCount() int64 {
	return atomic.LoadInt64(&s.callCount)
}

// CountCall records one host API call and reports whether the budget is
// exceeded.
func (s *Sandbox) CountCall() bool {
	count := atomic.AddInt64(&s.callCount, 1)
	return s.callLimit > 0 && count > s.callLimit
}

// Grant enables a capability.
func (s *Sandbox) Grant(cap Capability) {
	if s.capabilities[cap] {
		return
	}
	s.capabilities[cap] = true

	switch cap {
	case CapabilityFileRead:
		s.injectFileReadAPI()
	case CapabilityEnv:
		s.injectEnvAPI()
	case CapabilityUnsafe:
		lua.OpenIo(s.L)
		lua.OpenOs(s.L)
		lua.OpenDebug(s.L)
	}
}

// Revoke disables a capability.
// Already injected APIs are not removed; a new state is needed for that.
func (s *Sandbox) Revoke(cap Capability) {
	delete(s.capabilities, cap)
}

// HasCapability returns true if the capability is granted.
func (s *Sandbox) HasCapability(cap Capability) bool {
	return s.capabilities[cap]
}

// Capabilities returns all granted capabilities, sorted.
func (s *Sandbox) Capabilities() []Capability {
	caps := make([]Capability, 0, len(s.capabilities))
	for cap, granted := range s.capabilities {
		if granted {
			caps = append(caps, cap)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// CheckCapability returns an error if the capability is not granted.
func (s *Sandbox) CheckCapability(cap Capability) error {
	if !s.capabilities[cap] {
		return &CapabilityError{Capability: cap}
	}
	return nil
}

// injectFileReadAPI adds a read-only io table.
func (s *Sandbox) injectFileReadAPI() {
	ioMod := s.L.NewTable()

	s.L.SetField(ioMod, "read", s.L.NewFunction(func(L *lua.LState) int {
		content, err := os.ReadFile(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(content))
		return 1
	}))

	s.L.SetField(ioMod, "lines", s.L.NewFunction(func(L *lua.LState) int {
		content, err := os.ReadFile(L.CheckString(1))
		if err != nil {
			L.RaiseError("cannot open file: %s", err.Error())
			return 0
		}

		lines := splitLines(string(content))
		idx := 0
		L.Push(L.NewFunction(func(L *lua.LState) int {
			if idx >= len(lines) {
				return 0
			}
			L.Push(lua.LString(lines[idx]))
			idx++
			return 1
		}))
		return 1
	}))

	s.L.SetGlobal("io", ioMod)
}

// splitLines splits a string into lines.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// injectEnvAPI adds a limited os table.
func (s *Sandbox) injectEnvAPI() {
	osMod := s.L.NewTable()
	started := time.Now()

	s.L.SetField(osMod, "getenv", s.L.NewFunction(func(L *lua.LState) int {
		value, ok := os.LookupEnv(L.CheckString(1))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(value))
		return 1
	}))

	s.L.SetField(osMod, "time", s.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))

	s.L.SetField(osMod, "clock", s.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(started).Seconds()))
		return 1
	}))

	s.L.SetGlobal("os", osMod)
}

// CapabilityError is returned when a capability is not granted.
type CapabilityError struct {
	Capability Capability
}

func (e *CapabilityError) Error() string {
	return "capability not granted: " + string(e.Capability)
}
