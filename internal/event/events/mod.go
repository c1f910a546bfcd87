package events

import (
	"fmt"
	"strings"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/topic"
)

// Mod event names.
const (
	// TopicMod is the dispatchable base of every mod event.
	TopicMod topic.Topic = "mod"

	// TopicModLoading is published before a mod is activated. Canceling it
	// vetoes the activation.
	TopicModLoading topic.Topic = "mod.loading"

	// TopicModLoaded is published after a mod is activated.
	TopicModLoaded topic.Topic = "mod.loaded"

	// TopicModUnloading is published before a mod is torn down.
	TopicModUnloading topic.Topic = "mod.unloading"

	// TopicModReload is published when a mod's files changed on disk.
	// Canceling it vetoes the reload.
	TopicModReload topic.Topic = "mod.reload"

	// TopicModScript is published by mods through the script event API.
	TopicModScript topic.Topic = "mod.script"
)

// ModEvent is implemented by every mod.* occurrence.
type ModEvent interface {
	ModName() string
}

// Fielder exposes an occurrence as a flat map for script runtimes.
type Fielder interface {
	Fields() map[string]any
}

// ModLoading is published before a mod is activated.
type ModLoading struct {
	event.Cancellation

	// Name is the mod's name.
	Name string

	// Version is the mod's declared version.
	Version string

	// Path is the mod's directory.
	Path string

	// Reason explains a veto.
	Reason string
}

// ModName implements ModEvent.
func (e *ModLoading) ModName() string { return e.Name }

// Veto cancels the activation with a reason.
func (e *ModLoading) Veto(reason string) {
	e.Reason = reason
	e.SetCanceled(true)
}

// Describe implements event.Describer.
func (e *ModLoading) Describe() string {
	return fmt.Sprintf("mod.loading(%s@%s)", e.Name, e.Version)
}

// Fields implements Fielder.
func (e *ModLoading) Fields() map[string]any {
	return map[string]any{"mod": e.Name, "version": e.Version, "path": e.Path, "reason": e.Reason}
}

// ModLoaded is published after a mod is activated.
type ModLoaded struct {
	// Name is the mod's name.
	Name string

	// Version is the mod's declared version.
	Version string
}

// ModName implements ModEvent.
func (e *ModLoaded) ModName() string { return e.Name }

// Describe implements event.Describer.
func (e *ModLoaded) Describe() string {
	return fmt.Sprintf("mod.loaded(%s@%s)", e.Name, e.Version)
}

// Fields implements Fielder.
func (e *ModLoaded) Fields() map[string]any {
	return map[string]any{"mod": e.Name, "version": e.Version}
}

// UnloadReason says why a mod is torn down.
type UnloadReason string

// Unload reasons.
const (
	UnloadRequested UnloadReason = "requested"
	UnloadReload    UnloadReason = "reload"
	UnloadShutdown  UnloadReason = "shutdown"
)

// ModUnloading is published before a mod is torn down. The mod's own
// handlers still see it.
type ModUnloading struct {
	// Name is the mod's name.
	Name string

	// Reason says why the mod is unloaded.
	Reason UnloadReason
}

// ModName implements ModEvent.
func (e *ModUnloading) ModName() string { return e.Name }

// Describe implements event.Describer.
func (e *ModUnloading) Describe() string {
	return fmt.Sprintf("mod.unloading(%s, %s)", e.Name, e.Reason)
}

// Fields implements Fielder.
func (e *ModUnloading) Fields() map[string]any {
	return map[string]any{"mod": e.Name, "reason": string(e.Reason)}
}

// ModReloadRequested is published by the mod directory watcher.
type ModReloadRequested struct {
	event.Cancellation

	// Name is the mod's name.
	Name string

	// Changed lists the changed paths, relative to the mods directory.
	Changed []string
}

// ModName implements ModEvent.
func (e *ModReloadRequested) ModName() string { return e.Name }

// Describe implements event.Describer.
func (e *ModReloadRequested) Describe() string {
	return fmt.Sprintf("mod.reload(%s: %s)", e.Name, strings.Join(e.Changed, ","))
}

// Fields implements Fielder.
func (e *ModReloadRequested) Fields() map[string]any {
	changed := make([]any, len(e.Changed))
	for i, c := range e.Changed {
		changed[i] = c
	}
	return map[string]any{"mod": e.Name, "changed": changed}
}

// ScriptEvent is raised by a mod through the script event API.
type ScriptEvent struct {
	event.Cancellation

	// Mod is the emitting mod.
	Mod string

	// Name is the script-chosen event name.
	Name string

	// Data is the script-provided payload.
	Data map[string]any
}

// ModName implements ModEvent.
func (e *ScriptEvent) ModName() string { return e.Mod }

// Describe implements event.Describer.
func (e *ScriptEvent) Describe() string {
	return fmt.Sprintf("mod.script(%s from %s)", e.Name, e.Mod)
}

// Fields implements Fielder.
func (e *ScriptEvent) Fields() map[string]any {
	return map[string]any{"mod": e.Mod, "event": e.Name, "data": e.Data}
}
