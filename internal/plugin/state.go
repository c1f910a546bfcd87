package plugin

// State represents the lifecycle state of a mod.
type State int

// Mod states.
const (
	// StateUnloaded - Mod is not loaded.
	StateUnloaded State = iota

	// StateLoaded - Mod code has run but the mod is not activated.
	StateLoaded

	// StateActivating - Mod is running setup and activate.
	StateActivating

	// StateActive - Mod is active.
	StateActive

	// StateDeactivating - Mod is running deactivate.
	StateDeactivating

	// StateError - Mod failed to load or activate.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsUsable returns true if the mod can be used (loaded or active).
func (s State) IsUsable() bool {
	return s == StateLoaded || s == StateActive
}
