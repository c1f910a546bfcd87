// Package watcher turns file changes in the mods directory into mod.reload
// events.
//
// An FSNotifyWatcher reports raw file system changes. A ModWatcher maps each
// changed path to the mod that owns it, coalesces bursts per mod, rate
// limits each mod, and publishes events.ModReloadRequested on the bus. The
// watcher never reloads anything itself: the mod manager handles the event,
// and any handler may veto a reload by canceling it.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event represents a file system change.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Stats provides watcher status information.
type Stats struct {
	// WatchedPaths is the number of directories being watched.
	WatchedPaths int

	// TotalEvents is the number of file events seen.
	TotalEvents int64

	// Requests is the number of reload requests published.
	Requests int64

	// Limited is the number of reload requests dropped by the rate limit.
	Limited int64

	// Errors is the number of errors encountered.
	Errors int64

	// LastError is the most recent error, if any.
	LastError error
}
