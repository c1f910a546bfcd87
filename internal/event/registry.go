package event

import "fmt"

// registry maps each shape to its one dispatcher. Guarded by the bus mutex.
type registry struct {
	byShape map[ShapeID]*Dispatcher
	order   []*Dispatcher
}

func newRegistry() *registry {
	return &registry{byShape: make(map[ShapeID]*Dispatcher)}
}

// getOrCreate returns the dispatcher of shape, creating it on first use.
func (r *registry) getOrCreate(b *Bus, shape ShapeID) (*Dispatcher, error) {
	if d, ok := r.byShape[shape]; ok {
		return d, nil
	}
	desc, ok := Lookup(shape)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, shape)
	}
	d := newDispatcher(b, shape, desc)
	r.byShape[shape] = d
	r.order = append(r.order, d)
	b.stats.dispatchers.Add(1)
	return d, nil
}

func (r *registry) get(shape ShapeID) (*Dispatcher, bool) {
	d, ok := r.byShape[shape]
	return d, ok
}

// forEach visits every dispatcher ever created, in creation order, until fn
// returns false.
func (r *registry) forEach(fn func(*Dispatcher) bool) {
	for _, d := range r.order {
		if !fn(d) {
			return
		}
	}
}
