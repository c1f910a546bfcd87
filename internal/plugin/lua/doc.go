// Package lua provides the Lua runtime that mods run in.
//
// This package wraps gopher-lua to provide:
//   - Sandboxed Lua state management
//   - Go-Lua value conversion
//   - Capability-based access to io and os
//   - Execution timeouts and a host call budget
//
// # State
//
// The State type manages a Lua runtime with sandboxing:
//
//	state, err := lua.NewState(
//	    lua.WithExecutionTimeout(2 * time.Second),
//	    lua.WithCallLimit(10_000),
//	)
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	if err := state.DoFile(ctx, "init.lua"); err != nil {
//	    return err
//	}
//
// State does no locking. Calls may nest (Lua calls Go calls Lua) and the
// bounds apply to the outermost call.
//
// # Sandbox
//
// The Sandbox restricts Lua code execution by:
//   - Removing dofile, loadfile, load and loadstring
//   - Resolving require only for safe built-ins and preloaded modhost modules
//   - Gating io and os behind capabilities
//
// # Capabilities
//
// Mods request capabilities in their manifest:
//   - CapabilityEvent: the modhost.event module
//   - CapabilityFileRead: read-only io.read and io.lines
//   - CapabilityEnv: os.getenv, os.time, os.clock
//   - CapabilityUnsafe: the full io, os and debug libraries
package lua
