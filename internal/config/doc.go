// Package config loads the host configuration.
//
// Configuration is resolved in three steps, later steps overriding earlier:
//
//  1. Built-in defaults (Default).
//  2. A TOML or YAML file, chosen by extension.
//  3. Environment variables prefixed with MODHOST_, after loading any .env
//     files.
//
// Example modhost.toml:
//
//	[log]
//	level = "debug"
//
//	[mods]
//	dir = "./mods"
//	watch = true
//	debounce = "300ms"
//	disabled = ["experimental"]
//
//	[events]
//	async_timeout = "2s"
//
//	[tracing]
//	enabled = true
//	endpoint = "localhost:4318"
//
// The same settings from the environment:
//
//	MODHOST_LOG_LEVEL=debug
//	MODHOST_MODS_DIR=./mods
//	MODHOST_MODS_DISABLED=experimental,legacy
//	MODHOST_EVENTS_ASYNC_TIMEOUT=2s
package config
