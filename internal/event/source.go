package event

import (
	"context"
	"sync"
)

// Listener is notified by a Source when an occurrence is about to be
// published.
type Listener[T any] interface {
	OnPublish(ctx context.Context, evt T)
}

// Source raises occurrences of shape T. Listeners must be comparable;
// adding a listener twice is a no-op that returns false. A source only
// notifies its listeners; the bus handles delivery through the fan-out
// chain.
type Source[T any] interface {
	AddListener(l Listener[T]) bool
	RemoveListener(l Listener[T]) bool
}

// Emitter is the standard Source.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []Listener[T]
}

// NewEmitter creates an emitter with no listeners.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// AddListener implements Source.
func (e *Emitter[T]) AddListener(l Listener[T]) bool {
	if l == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.listeners {
		if existing == l {
			return false
		}
	}
	e.listeners = append(e.listeners, l)
	return true
}

// RemoveListener implements Source.
func (e *Emitter[T]) RemoveListener(l Listener[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns the number of subscribed listeners.
func (e *Emitter[T]) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Publish notifies every listener in subscription order. Handler failures
// never reach the caller; handlers communicate back only by mutating evt.
func (e *Emitter[T]) Publish(ctx context.Context, evt T) {
	e.mu.Lock()
	listeners := append([]Listener[T](nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnPublish(ctx, evt)
	}
}

type linkKey struct {
	owner Owner
	src   any
}

// sourceLink is the listener the bus attaches to one owner's source. Its
// dispatchers are kept in chain order and guarded by the bus mutex.
type sourceLink[T any] struct {
	bus         *Bus
	dispatchers []*Dispatcher
}

// OnPublish opens a pass for the occurrence and runs each dispatcher in
// turn, so a handler reachable through several of them runs once.
func (l *sourceLink[T]) OnPublish(ctx context.Context, evt T) {
	l.bus.mu.Lock()
	targets := append([]*Dispatcher(nil), l.dispatchers...)
	l.bus.mu.Unlock()

	ctx = beginPass(ctx)
	for _, d := range targets {
		d.notify(ctx, evt)
	}
}

// drop removes d and reports whether the link is now empty. Caller holds
// bus.mu.
func (l *sourceLink[T]) drop(d *Dispatcher) bool {
	for i, existing := range l.dispatchers {
		if existing == d {
			l.dispatchers = append(l.dispatchers[:i:i], l.dispatchers[i+1:]...)
			break
		}
	}
	return len(l.dispatchers) == 0
}
