package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Priority determines handler execution order.
// Higher values execute first.
type Priority int

const (
	// PriorityLowest is for handlers that only react to the final state.
	PriorityLowest Priority = -200

	// PriorityLow is for bookkeeping handlers such as the reload handler.
	PriorityLow Priority = -100

	// PriorityNormal is the default priority for mods.
	PriorityNormal Priority = 0

	// PriorityHigh is for handlers that may cancel before mods see an event.
	PriorityHigh Priority = 100

	// PriorityHighest runs before everything else.
	PriorityHighest Priority = 200
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p >= PriorityHighest:
		return "highest"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	case p >= PriorityLow:
		return "low"
	default:
		return "lowest"
	}
}

// Variant is the dispatch semantics of an event shape.
type Variant int

const (
	// Sync handlers run on the publisher's goroutine.
	Sync Variant = iota

	// SyncCancelable is Sync with a canceled flag consulted between handlers.
	SyncCancelable

	// Async handlers run on their own goroutine and are awaited one at a time.
	Async

	// AsyncCancelable is Async with a canceled flag consulted between handlers.
	AsyncCancelable
)

// IsAsync reports whether handlers are awaited on their own goroutine.
func (v Variant) IsAsync() bool {
	return v == Async || v == AsyncCancelable
}

// IsCancelable reports whether the canceled flag is consulted.
func (v Variant) IsCancelable() bool {
	return v == SyncCancelable || v == AsyncCancelable
}

// IsValid reports whether v is one of the four variants.
func (v Variant) IsValid() bool {
	return v >= Sync && v <= AsyncCancelable
}

// String returns a human-readable variant name.
func (v Variant) String() string {
	switch v {
	case Sync:
		return "sync"
	case SyncCancelable:
		return "sync-cancelable"
	case Async:
		return "async"
	case AsyncCancelable:
		return "async-cancelable"
	default:
		return "unknown"
	}
}

// HostID identifies one host instance.
type HostID uuid.UUID

// NewHostID returns a fresh random host ID.
func NewHostID() HostID {
	return HostID(uuid.New())
}

// String returns the canonical UUID form.
func (id HostID) String() string {
	return uuid.UUID(id).String()
}

// Owner is the grouping key for registrations. The engine only compares
// owners and checks that they belong to the bus's host.
type Owner interface {
	HostID() HostID
}

// NamedOwner is a simple Owner for host-internal components.
type NamedOwner struct {
	host HostID
	name string
}

// HostID implements Owner.
func (o *NamedOwner) HostID() HostID {
	return o.host
}

// Name returns the owner's name.
func (o *NamedOwner) Name() string {
	return o.name
}

// String returns the owner's name.
func (o *NamedOwner) String() string {
	return o.name
}

// Handler handles occurrences of shape T.
type Handler[T any] interface {
	Handle(ctx context.Context, evt T) error
}

// Namer is implemented by handlers that report a stable name. Names order
// handlers of equal priority and identify them in log lines.
type Namer interface {
	Name() string
}

// FuncHandler adapts a function to Handler. It is always used by pointer so
// that each handler has a distinct identity.
type FuncHandler[T any] struct {
	name string
	fn   func(ctx context.Context, evt T) error
}

// NewHandler returns a named handler backed by fn.
func NewHandler[T any](name string, fn func(ctx context.Context, evt T) error) *FuncHandler[T] {
	return &FuncHandler[T]{name: name, fn: fn}
}

// Handle implements Handler.
func (h *FuncHandler[T]) Handle(ctx context.Context, evt T) error {
	return h.fn(ctx, evt)
}

// Name implements Namer.
func (h *FuncHandler[T]) Name() string {
	return h.name
}

func handlerName(h any) string {
	if n, ok := h.(Namer); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// Logger receives the engine's diagnostics. Messages are produced lazily so
// disabled levels cost nothing.
type Logger interface {
	Trace(msg func() string)
	Warn(msg func() string)
}

// NopLogger discards everything.
type NopLogger struct{}

// Trace implements Logger.
func (NopLogger) Trace(func() string) {}

// Warn implements Logger.
func (NopLogger) Warn(func() string) {}
