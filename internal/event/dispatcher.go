package event

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/modhost/internal/event/dispatch"
)

// registration is one handler entry on one dispatcher.
type registration struct {
	owner    Owner
	key      any
	inv      invoker
	name     string
	priority Priority
	skip     bool
	timeout  time.Duration
	seq      uint64

	// removed is set when the entry leaves the dispatcher, so a pass
	// iterating an older snapshot skips it.
	removed atomic.Bool
}

// Handle adapts the registration to dispatch.Handler.
func (r *registration) Handle(ctx context.Context, occ any) error {
	return r.inv.invoke(ctx, occ)
}

// sourceEntry is one source subscribed to one dispatcher.
type sourceEntry struct {
	owner  Owner
	key    any
	detach func()
}

// HandlerInfo describes a registered handler for diagnostics.
type HandlerInfo struct {
	Name           string
	Priority       Priority
	SkipIfCanceled bool
	Owner          Owner
}

// Dispatcher holds the handlers and sources of exactly one shape and runs
// the notify loop for it. Dispatchers are created by the Bus on first use and
// live as long as the bus.
type Dispatcher struct {
	bus   *Bus
	shape ShapeID
	desc  Descriptor
	seq   uint64

	// Guarded by bus.mu.
	handlers []*registration
	sources  []*sourceEntry
	owners   map[Owner]*ownedSet
}

// ownedSet is the ownership index entry of one owner on one dispatcher.
type ownedSet struct {
	handlers map[any]*registration
	sources  map[any]*sourceEntry
}

func newDispatcher(b *Bus, shape ShapeID, desc Descriptor) *Dispatcher {
	return &Dispatcher{
		bus:    b,
		shape:  shape,
		desc:   desc,
		owners: make(map[Owner]*ownedSet),
	}
}

// Shape returns the dispatcher's shape.
func (d *Dispatcher) Shape() ShapeID { return d.shape }

// Name returns the shape's declared name.
func (d *Dispatcher) Name() string { return d.desc.Name.String() }

// Variant returns the shape's variant.
func (d *Dispatcher) Variant() Variant { return d.desc.Variant }

// HandlerCount returns the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return len(d.handlers)
}

// SourceCount returns the number of subscribed sources.
func (d *Dispatcher) SourceCount() int {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return len(d.sources)
}

// Handlers returns the registered handlers in execution order.
func (d *Dispatcher) Handlers() []HandlerInfo {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	out := make([]HandlerInfo, len(d.handlers))
	for i, r := range d.handlers {
		out[i] = HandlerInfo{Name: r.name, Priority: r.priority, SkipIfCanceled: r.skip, Owner: r.owner}
	}
	return out
}

// Owns reports whether owner has anything registered on this dispatcher.
func (d *Dispatcher) Owns(owner Owner) bool {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	_, ok := d.owners[owner]
	return ok
}

func (d *Dispatcher) owned(owner Owner) *ownedSet {
	set, ok := d.owners[owner]
	if !ok {
		set = &ownedSet{
			handlers: make(map[any]*registration),
			sources:  make(map[any]*sourceEntry),
		}
		d.owners[owner] = set
	}
	return set
}

func (d *Dispatcher) release(owner Owner) {
	if set, ok := d.owners[owner]; ok && len(set.handlers) == 0 && len(set.sources) == 0 {
		delete(d.owners, owner)
	}
}

// addHandler inserts reg in priority order unless owner already registered
// the same key here. Caller holds bus.mu.
func (d *Dispatcher) addHandler(reg *registration) bool {
	set := d.owned(reg.owner)
	if _, ok := set.handlers[reg.key]; ok {
		return false
	}
	d.seq++
	reg.seq = d.seq
	set.handlers[reg.key] = reg

	handlers := append(append([]*registration(nil), d.handlers...), reg)
	sort.SliceStable(handlers, func(i, j int) bool {
		a, b := handlers[i], handlers[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.seq < b.seq
	})
	d.handlers = handlers
	d.bus.stats.handlers.Add(1)
	return true
}

// removeHandler removes owner's registration of key. Caller holds bus.mu.
func (d *Dispatcher) removeHandler(owner Owner, key any) bool {
	set, ok := d.owners[owner]
	if !ok {
		return false
	}
	reg, ok := set.handlers[key]
	if !ok {
		return false
	}
	delete(set.handlers, key)
	d.release(owner)
	d.dropHandlers(func(r *registration) bool { return r == reg })
	return true
}

// dropHandlers rebuilds the handler list without the matching entries and
// flags them removed. The old slice stays intact for in-flight snapshots.
func (d *Dispatcher) dropHandlers(match func(*registration) bool) int {
	kept := make([]*registration, 0, len(d.handlers))
	n := 0
	for _, r := range d.handlers {
		if match(r) {
			r.removed.Store(true)
			n++
			continue
		}
		kept = append(kept, r)
	}
	d.handlers = kept
	d.bus.stats.handlers.Add(-int64(n))
	return n
}

// addSource subscribes the dispatcher to a source unless owner already did.
// attach performs the subscription and returns the matching detach func.
// Caller holds bus.mu.
func (d *Dispatcher) addSource(owner Owner, key any, attach func() (func(), bool)) bool {
	set := d.owned(owner)
	if _, ok := set.sources[key]; ok {
		return false
	}
	detach, ok := attach()
	if !ok {
		d.release(owner)
		return false
	}
	entry := &sourceEntry{owner: owner, key: key, detach: detach}
	set.sources[key] = entry
	d.sources = append(d.sources, entry)
	d.bus.stats.sources.Add(1)
	return true
}

// removeSource unsubscribes owner's source. Caller holds bus.mu.
func (d *Dispatcher) removeSource(owner Owner, key any) bool {
	set, ok := d.owners[owner]
	if !ok {
		return false
	}
	entry, ok := set.sources[key]
	if !ok {
		return false
	}
	delete(set.sources, key)
	d.release(owner)
	d.dropSources(func(e *sourceEntry) bool { return e == entry })
	return true
}

func (d *Dispatcher) dropSources(match func(*sourceEntry) bool) int {
	kept := make([]*sourceEntry, 0, len(d.sources))
	n := 0
	for _, e := range d.sources {
		if match(e) {
			e.detach()
			n++
			continue
		}
		kept = append(kept, e)
	}
	d.sources = kept
	d.bus.stats.sources.Add(-int64(n))
	return n
}

// unregisterOwner removes every handler and source recorded for owner.
// Caller holds bus.mu.
func (d *Dispatcher) unregisterOwner(owner Owner) (handlers, sources int) {
	if _, ok := d.owners[owner]; !ok {
		return 0, 0
	}
	delete(d.owners, owner)
	handlers = d.dropHandlers(func(r *registration) bool { return r.owner == owner })
	sources = d.dropSources(func(e *sourceEntry) bool { return e.owner == owner })
	return handlers, sources
}

// notify runs the handler loop for one occurrence. Handlers run one after
// another in priority order on a snapshot of the list. For cancelable
// variants a handler registered with skip-if-canceled is passed over while
// the occurrence is canceled; the loop itself always runs to the end.
func (d *Dispatcher) notify(ctx context.Context, occ any) {
	b := d.bus

	b.mu.Lock()
	snapshot := d.handlers
	b.mu.Unlock()

	b.stats.notifications.Add(1)
	defer passFrom(ctx).markDelivered(d.shape)

	if len(snapshot) == 0 {
		return
	}

	ctx, span := b.tracer.Start(ctx, "event.dispatch "+d.Name(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("event.shape", d.Name()),
			attribute.String("event.variant", d.desc.Variant.String()),
			attribute.Int("event.handlers", len(snapshot)),
		),
	)
	defer span.End()

	var invoked, skipped, failed int
	for _, reg := range snapshot {
		if reg.removed.Load() {
			continue
		}

		if d.desc.Variant.IsCancelable() && reg.skip && IsCanceled(occ) {
			skipped++
			b.stats.skipped.Add(1)
			b.logger.Trace(func() string {
				return fmt.Sprintf("skipping handler %s for canceled %s", reg.name, Describe(occ))
			})
			continue
		}

		invoked++
		if !d.invoke(ctx, reg, occ) {
			failed++
		}
	}

	span.SetAttributes(
		attribute.Int("event.invoked", invoked),
		attribute.Int("event.skipped", skipped),
		attribute.Int("event.failed", failed),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler(s) failed", failed))
	}
}

// invoke runs one handler and logs its failure. Reports success.
func (d *Dispatcher) invoke(ctx context.Context, reg *registration, occ any) bool {
	b := d.bus
	b.stats.invoked.Add(1)

	var res dispatch.Result
	if d.desc.Variant.IsAsync() {
		timeout := reg.timeout
		if timeout == 0 {
			timeout = b.asyncInv.Timeout()
		}
		res = b.asyncInv.InvokeWithTimeout(ctx, occ, reg, timeout)
	} else {
		res = b.syncInv.Invoke(ctx, occ, reg)
	}

	if res.IsSuccess() {
		return true
	}

	var err error
	switch {
	case res.Panicked:
		b.stats.panicked.Add(1)
		err = &PanicError{Handler: reg.name, Shape: d.Name(), Value: res.PanicValue, Stack: string(res.PanicStack)}
	case res.TimedOut:
		b.stats.timedOut.Add(1)
		err = &HandlerError{Handler: reg.name, Shape: d.Name(), Err: res.Error}
	default:
		b.stats.failed.Add(1)
		err = &HandlerError{Handler: reg.name, Shape: d.Name(), Err: res.Error}
	}

	b.logger.Warn(func() string {
		return fmt.Sprintf("%v (occurrence: %s)", err, Describe(occ))
	})
	return false
}
