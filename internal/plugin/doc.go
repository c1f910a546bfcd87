// Package plugin hosts Lua mods on the event bus.
//
// A mod is either a directory or a single Lua file inside the mods
// directory:
//
//	mods/
//	├── auto-save/
//	│   ├── mod.json     # Manifest (optional)
//	│   └── init.lua     # Entry point
//	└── greeter.lua      # Single-file mod
//
// # Manifest
//
//	{
//	    "name": "auto-save",
//	    "version": "1.0.0",
//	    "main": "init.lua",
//	    "capabilities": ["event", "env"],
//	    "configSchema": {
//	        "interval": {"type": "number", "default": 30}
//	    }
//	}
//
// Mods without a manifest are granted the event capability only.
//
// # Lifecycle
//
// Each mod runs in its own Host. Loading runs the main file, activation
// calls the optional setup(config) and activate() globals, deactivation
// calls deactivate(). The Host is the event owner of every handler and
// source the mod registers, so unloading removes all of them with one
// owner sweep.
//
// The Manager loads mods from one directory in name order and raises the
// mod.loading, mod.loaded and mod.unloading events. Any handler of
// mod.loading may veto a load by canceling the occurrence. The Manager also
// handles mod.reload, so a directory watcher only has to publish it.
//
// # Lua API
//
//	local event = require("modhost.event")
//
//	local id = event.on("mod.*", function(e)
//	    if e.name == "mod.loading" and e.mod == "legacy" then
//	        e.canceled = true
//	    end
//	end, { priority = event.priority.high })
//
//	event.emit("greeted", { who = "world" })
//	event.off(id)
package plugin
