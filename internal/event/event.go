package event

import (
	"fmt"
	"sync/atomic"
)

// Event is the erased form of an occurrence, used by handlers that subscribe
// by shape name rather than by Go type.
type Event = any

// Cancelable is implemented by occurrences of cancelable shapes.
type Cancelable interface {
	IsCanceled() bool
	SetCanceled(canceled bool)
}

// Cancellation is embedded in occurrence types to implement Cancelable.
// The flag is atomic because an awaited handler that timed out may still be
// running when the next handler reads it.
type Cancellation struct {
	canceled atomic.Bool
}

// IsCanceled reports whether a handler canceled the occurrence.
func (c *Cancellation) IsCanceled() bool {
	return c.canceled.Load()
}

// SetCanceled sets or clears the canceled flag.
func (c *Cancellation) SetCanceled(canceled bool) {
	c.canceled.Store(canceled)
}

// Describer is implemented by occurrences that describe themselves in log lines.
type Describer interface {
	Describe() string
}

// Describe returns a short description of an occurrence.
func Describe(occ any) string {
	if d, ok := occ.(Describer); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", occ)
}

// IsCanceled reports whether occ is a canceled Cancelable.
func IsCanceled(occ any) bool {
	c, ok := occ.(Cancelable)
	return ok && c.IsCanceled()
}
