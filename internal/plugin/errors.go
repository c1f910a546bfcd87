package plugin

import "errors"

// Mod host errors.
var (
	// ErrModNotFound is returned when a mod cannot be located.
	ErrModNotFound = errors.New("mod not found")

	// ErrNoEntryPoint is returned when a mod has no valid entry point.
	ErrNoEntryPoint = errors.New("mod has no entry point (init.lua)")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrNilBus is returned when a host is created without an event bus.
	ErrNilBus = errors.New("event bus is nil")

	// ErrAlreadyLoaded is returned when attempting to load an already loaded mod.
	ErrAlreadyLoaded = errors.New("mod is already loaded")

	// ErrNotLoaded is returned when attempting to use an unloaded mod.
	ErrNotLoaded = errors.New("mod is not loaded")

	// ErrModDisabled is returned when attempting to load a disabled mod.
	ErrModDisabled = errors.New("mod is disabled")

	// ErrLoadVetoed is returned when a mod.loading handler canceled the load.
	ErrLoadVetoed = errors.New("mod load vetoed")
)
