package event

import (
	"context"
	"sync"
)

type passKey struct{}

// pass records which dispatchers have already run for one occurrence.
type pass struct {
	mu        sync.Mutex
	delivered map[ShapeID]bool
}

// beginPass returns a context that carries a fresh dispatch pass. The bus
// opens one per occurrence before walking the chain, so that a handler
// reached through several dispatchers runs only once.
func beginPass(ctx context.Context) context.Context {
	return context.WithValue(ctx, passKey{}, &pass{delivered: make(map[ShapeID]bool)})
}

func passFrom(ctx context.Context) *pass {
	p, _ := ctx.Value(passKey{}).(*pass)
	return p
}

func (p *pass) markDelivered(shape ShapeID) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.delivered[shape] = true
	p.mu.Unlock()
}

func (p *pass) wasDelivered(shape ShapeID) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered[shape]
}
