// Package api provides the Lua modules exposed to mods.
//
// Mods reach the host through the "modhost" namespace:
//
//	local modhost = require("modhost")
//	modhost.log.info("ready")
//
//	local event = require("modhost.event")
//	local id = event.on("mod.*", function(e)
//	    if e.name == "mod.loading" and e.mod == "legacy" then
//	        e.canceled = true
//	    end
//	end, { priority = event.priority.high })
//
//	local canceled = event.emit("greeting", { text = "hi" })
//	event.off(id)
//
// # Architecture
//
// Each module implements the Module interface:
//
//	type Module interface {
//	    Name() string
//	    RequiredCapability() lua.Capability
//	    Open(L *glua.LState) *glua.LTable
//	}
//
// A Registry injects every module a mod's sandbox grants into its state, as
// "modhost.<name>" and as a field of the aggregate "modhost" module.
//
// # Threading
//
// Handlers registered through modhost.event may be invoked from any
// goroutine. Every entry into the Lua state goes through the Context's
// Runner, which serializes access to the state and lets nested calls from
// the same dispatch chain through.
package api
