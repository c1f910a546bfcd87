package event

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/modhost/internal/event/dispatch"
)

const tracerName = "github.com/dshills/modhost/internal/event"

// Bus is the event engine of one host. It owns one dispatcher per shape, the
// proxy cache, and the ownership index used for teardown.
//
// A single mutex guards every registry, dispatcher and ownership mutation.
// Dispatch copies the handler list under the lock and runs handlers without
// it, so handlers may register and unregister re-entrantly.
type Bus struct {
	id HostID

	mu      sync.Mutex
	reg     *registry
	proxies *proxyCache
	links   map[linkKey]any

	logger   Logger
	tracer   trace.Tracer
	syncInv  *dispatch.SyncInvoker
	asyncInv *dispatch.AsyncInvoker

	stats busStats
}

// New creates a bus for the host identified by id.
func New(id HostID, opts ...BusOption) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}

	return &Bus{
		id:       id,
		reg:      newRegistry(),
		proxies:  newProxyCache(),
		links:    make(map[linkKey]any),
		logger:   cfg.logger,
		tracer:   cfg.tracer,
		syncInv:  dispatch.NewSyncInvoker(),
		asyncInv: dispatch.NewAsyncInvoker(dispatch.WithTimeout(cfg.asyncTimeout)),
	}
}

// HostID returns the ID of the host owning the bus.
func (b *Bus) HostID() HostID {
	return b.id
}

// NewOwner returns an owner belonging to this bus's host.
func (b *Bus) NewOwner(name string) *NamedOwner {
	return &NamedOwner{host: b.id, name: name}
}

// Dispatcher returns the dispatcher of shape if one was created.
func (b *Bus) Dispatcher(shape ShapeID) (*Dispatcher, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg.get(shape)
}

// Dispatchers returns every dispatcher in creation order.
func (b *Bus) Dispatchers() []*Dispatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Dispatcher, 0, len(b.reg.order))
	b.reg.forEach(func(d *Dispatcher) bool {
		out = append(out, d)
		return true
	})
	return out
}

// Stats returns bus statistics.
func (b *Bus) Stats() Stats {
	s := b.stats.snapshot()
	b.mu.Lock()
	s.Proxies = b.proxies.len()
	b.mu.Unlock()
	return s
}

// RegisterHandler registers h for shape T with owner. The handler is added to
// T's dispatcher and, through a proxy, to the dispatcher of every ancestor in
// T's fan-out chain. Reports whether anything was newly added; registering
// the same (owner, handler) pair again is a no-op.
func RegisterHandler[T any](b *Bus, owner Owner, h Handler[T], opts ...HandlerOption) (bool, error) {
	if err := checkValue(h, ErrNilHandler); err != nil {
		return false, err
	}
	return b.registerHandler(owner, ShapeOf[T](), h, typedInvoker[T]{h: h}, opts)
}

// UnregisterHandler removes owner's registration of h for shape T from every
// dispatcher in T's chain. Reports whether anything was removed.
func UnregisterHandler[T any](b *Bus, owner Owner, h Handler[T]) (bool, error) {
	if err := checkValue(h, ErrNilHandler); err != nil {
		return false, err
	}
	return b.unregisterHandler(owner, ShapeOf[T](), h)
}

// RegisterShapeHandler registers an erased handler for a shape known only at
// run time, such as a shape a script subscribed to by name.
func (b *Bus) RegisterShapeHandler(owner Owner, shape ShapeID, h Handler[Event], opts ...HandlerOption) (bool, error) {
	if err := checkValue(h, ErrNilHandler); err != nil {
		return false, err
	}
	return b.registerHandler(owner, shape, h, typedInvoker[Event]{h: h}, opts)
}

// UnregisterShapeHandler is the inverse of RegisterShapeHandler.
func (b *Bus) UnregisterShapeHandler(owner Owner, shape ShapeID, h Handler[Event]) (bool, error) {
	if err := checkValue(h, ErrNilHandler); err != nil {
		return false, err
	}
	return b.unregisterHandler(owner, shape, h)
}

// RegisterSource subscribes the dispatcher of every shape in T's fan-out
// chain to src, in chain order. The bus attaches one listener per owner and
// source; it opens a dispatch pass for each occurrence and notifies the
// chain's dispatchers in order. Reports whether anything was newly added.
func RegisterSource[T any](b *Bus, owner Owner, src Source[T]) (bool, error) {
	if err := b.validateOwner(owner); err != nil {
		return false, err
	}
	if err := checkValue(src, ErrNilSource); err != nil {
		return false, err
	}
	chain, err := FanOutChain(ShapeOf[T]())
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := linkKey{owner: owner, src: src}
	link, _ := b.links[key].(*sourceLink[T])
	if link == nil {
		link = &sourceLink[T]{bus: b}
	}

	added := false
	for _, shape := range chain {
		d, err := b.reg.getOrCreate(b, shape)
		if err != nil {
			return added, err
		}
		ok := d.addSource(owner, src, func() (func(), bool) {
			if len(link.dispatchers) == 0 {
				if !src.AddListener(link) {
					return nil, false
				}
				b.links[key] = link
			}
			link.dispatchers = append(link.dispatchers, d)
			return func() {
				if link.drop(d) {
					src.RemoveListener(link)
					delete(b.links, key)
				}
			}, true
		})
		added = added || ok
	}
	return added, nil
}

// UnregisterSource unsubscribes every dispatcher in T's chain from owner's
// src. Reports whether anything was removed.
func UnregisterSource[T any](b *Bus, owner Owner, src Source[T]) (bool, error) {
	if err := b.validateOwner(owner); err != nil {
		return false, err
	}
	if err := checkValue(src, ErrNilSource); err != nil {
		return false, err
	}
	chain, err := FanOutChain(ShapeOf[T]())
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for _, shape := range chain {
		if d, ok := b.reg.get(shape); ok && d.removeSource(owner, src) {
			removed = true
		}
	}
	return removed, nil
}

// UnregisterOwner removes every handler and source owner registered, from
// every dispatcher the bus ever created. Calling it for an owner with
// nothing registered is a no-op.
func (b *Bus) UnregisterOwner(owner Owner) error {
	if err := b.validateOwner(owner); err != nil {
		return err
	}

	b.mu.Lock()
	var handlers, sources int
	b.reg.forEach(func(d *Dispatcher) bool {
		h, s := d.unregisterOwner(owner)
		handlers += h
		sources += s
		return true
	})
	b.mu.Unlock()

	b.logger.Trace(func() string {
		return fmt.Sprintf("unregistered owner %v: %d handler(s), %d source(s)", owner, handlers, sources)
	})
	return nil
}

func (b *Bus) registerHandler(owner Owner, shape ShapeID, key any, inv invoker, opts []HandlerOption) (bool, error) {
	if err := b.validateOwner(owner); err != nil {
		return false, err
	}
	chain, err := FanOutChain(shape)
	if err != nil {
		return false, err
	}

	cfg := handlerConfig{priority: PriorityNormal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = handlerName(key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	added := false
	for i, s := range chain {
		d, err := b.reg.getOrCreate(b, s)
		if err != nil {
			return added, err
		}

		regKey, regInv := key, inv
		if i > 0 {
			p := b.proxies.getOrCreate(s, shape, key, inv)
			regKey, regInv = p, p
		}

		if d.addHandler(&registration{
			owner:    owner,
			key:      regKey,
			inv:      regInv,
			name:     cfg.name,
			priority: cfg.priority,
			skip:     cfg.skip,
			timeout:  cfg.timeout,
		}) {
			added = true
		}
	}
	return added, nil
}

func (b *Bus) unregisterHandler(owner Owner, shape ShapeID, key any) (bool, error) {
	if err := b.validateOwner(owner); err != nil {
		return false, err
	}
	chain, err := FanOutChain(shape)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for i, s := range chain {
		d, ok := b.reg.get(s)
		if !ok {
			continue
		}
		regKey := key
		if i > 0 {
			p, ok := b.proxies.get(s, shape, key)
			if !ok {
				continue
			}
			regKey = p
		}
		if d.removeHandler(owner, regKey) {
			removed = true
		}
	}
	return removed, nil
}

// validateOwner rejects nil, non-comparable and foreign owners.
func (b *Bus) validateOwner(owner Owner) error {
	if err := checkValue(owner, ErrNilOwner); err != nil {
		return err
	}
	if got := owner.HostID(); got != b.id {
		return &ForeignOwnerError{Want: b.id, Got: got}
	}
	return nil
}

// checkValue rejects nil values and values that cannot be map keys.
func checkValue(v any, nilErr error) error {
	if v == nil {
		return nilErr
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return nilErr
		}
	}
	if !rv.Type().Comparable() {
		return fmt.Errorf("%w: %T", ErrNotComparable, v)
	}
	return nil
}

// Publish is a convenience for one-off occurrences: it opens a pass and
// notifies T's chain directly, as a source for T would.
func Publish[T any](ctx context.Context, b *Bus, evt T) error {
	chain, err := FanOutChain(ShapeOf[T]())
	if err != nil {
		return err
	}

	b.mu.Lock()
	dispatchers := make([]*Dispatcher, 0, len(chain))
	for _, s := range chain {
		d, err := b.reg.getOrCreate(b, s)
		if err != nil {
			b.mu.Unlock()
			return err
		}
		dispatchers = append(dispatchers, d)
	}
	b.mu.Unlock()

	ctx = beginPass(ctx)
	for _, d := range dispatchers {
		d.notify(ctx, evt)
	}
	return nil
}
