package watcher

import (
	"sort"
	"sync"
	"time"
)

// Batch is the set of changes to one mod collected during a debounce window.
type Batch struct {
	Mod   string
	Paths []string
}

// Debouncer coalesces changes per mod. Each change restarts the mod's
// timer; when it expires the collected paths are sent as one Batch.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingBatch
	out     chan Batch
	closed  bool
	closeCh chan struct{}
}

type pendingBatch struct {
	paths map[string]bool
	timer *time.Timer
}

// NewDebouncer creates a debouncer. A non-positive delay defaults to 100ms.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingBatch),
		out:     make(chan Batch, 16),
		closeCh: make(chan struct{}),
	}
}

// Batches returns the channel of coalesced batches. It is never closed;
// select on Done as well.
func (d *Debouncer) Batches() <-chan Batch {
	return d.out
}

// Done is closed by Close.
func (d *Debouncer) Done() <-chan struct{} {
	return d.closeCh
}

// Add records a change to path within mod.
func (d *Debouncer) Add(mod, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if p, ok := d.pending[mod]; ok {
		p.paths[path] = true
		p.timer.Reset(d.delay)
		return
	}

	p := &pendingBatch{paths: map[string]bool{path: true}}
	p.timer = time.AfterFunc(d.delay, func() {
		d.fire(mod)
	})
	d.pending[mod] = p
}

func (d *Debouncer) fire(mod string) {
	d.mu.Lock()
	p, ok := d.pending[mod]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, mod)
	batch := Batch{Mod: mod, Paths: make([]string, 0, len(p.paths))}
	for path := range p.paths {
		batch.Paths = append(batch.Paths, path)
	}
	d.mu.Unlock()

	sort.Strings(batch.Paths)

	select {
	case d.out <- batch:
	case <-d.closeCh:
	}
}

// Flush fires every pending batch immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	mods := make([]string, 0, len(d.pending))
	for mod, p := range d.pending {
		p.timer.Stop()
		mods = append(mods, mod)
	}
	d.mu.Unlock()

	sort.Strings(mods)
	for _, mod := range mods {
		d.fire(mod)
	}
}

// PendingCount returns the number of mods with pending changes.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close drops every pending batch.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.closeCh)
	for mod, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, mod)
	}
}
