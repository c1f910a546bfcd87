package event

import (
	"context"
	"reflect"
)

// invoker is the erased form of a handler held by a dispatcher.
type invoker interface {
	invoke(ctx context.Context, occ any) error
}

// typedInvoker calls a Handler[T] with an occurrence asserted to T.
type typedInvoker[T any] struct {
	h Handler[T]
}

func (t typedInvoker[T]) invoke(ctx context.Context, occ any) error {
	evt, ok := occ.(T)
	if !ok {
		return nil
	}
	return t.h.Handle(ctx, evt)
}

// proxy lets a handler written for the derived shape sit on the dispatcher
// of an ancestor shape.
type proxy struct {
	base    ShapeID
	derived ShapeID
	target  invoker
}

// invoke forwards only occurrences that are instances of the derived shape
// and that the derived shape's dispatcher has not already delivered in the
// current pass.
func (p *proxy) invoke(ctx context.Context, occ any) error {
	if !isInstance(occ, p.derived) {
		return nil
	}
	if passFrom(ctx).wasDelivered(p.derived) {
		return nil
	}
	return p.target.invoke(ctx, occ)
}

// isInstance reports whether occ is an occurrence of shape. For interface
// shapes the occurrence's type must declare shape as an ancestor; satisfying
// the interface is not enough.
func isInstance(occ any, shape ShapeID) bool {
	t := reflect.TypeOf(occ)
	if t == nil {
		return false
	}
	if shape.Kind() != reflect.Interface {
		return t == shape
	}
	return t.Implements(shape) && declaresAncestor(t, shape)
}

type proxyKey struct {
	base    ShapeID
	derived ShapeID
	handler any
}

// proxyCache maps (base, derived, handler) to one proxy for the bus lifetime,
// so repeated registration and unregistration resolve to the same instance.
// Guarded by the bus mutex.
type proxyCache struct {
	proxies map[proxyKey]*proxy
}

func newProxyCache() *proxyCache {
	return &proxyCache{proxies: make(map[proxyKey]*proxy)}
}

func (c *proxyCache) getOrCreate(base, derived ShapeID, handler any, target invoker) *proxy {
	key := proxyKey{base: base, derived: derived, handler: handler}
	if p, ok := c.proxies[key]; ok {
		return p
	}
	p := &proxy{base: base, derived: derived, target: target}
	c.proxies[key] = p
	return p
}

func (c *proxyCache) get(base, derived ShapeID, handler any) (*proxy, bool) {
	p, ok := c.proxies[proxyKey{base: base, derived: derived, handler: handler}]
	return p, ok
}

func (c *proxyCache) len() int {
	return len(c.proxies)
}
