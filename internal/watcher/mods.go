package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/logging"
)

// Resolver maps changed paths to mods. *plugin.Loader implements it.
type Resolver interface {
	Dir() string
	ModFor(path string) (string, bool)
}

// Config configures a ModWatcher.
type Config struct {
	// Debounce is the quiet period after the last change to a mod before a
	// reload is requested.
	Debounce time.Duration

	// ReloadsPerMinute caps reload requests per mod. Zero disables the cap.
	ReloadsPerMinute int

	// BufferSize is the capacity of the raw file event channel.
	BufferSize int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:         250 * time.Millisecond,
		ReloadsPerMinute: 30,
		BufferSize:       100,
	}
}

// ModWatcher publishes mod.reload requests for changed mods.
type ModWatcher struct {
	bus      *event.Bus
	owner    event.Owner
	resolver Resolver
	config   Config
	logger   *logging.Logger

	fs        *FSNotifyWatcher
	debouncer *Debouncer
	requests  *event.Emitter[*events.ModReloadRequested]

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	published atomic.Int64
	limited   atomic.Int64
}

// Option configures a ModWatcher.
type Option func(*ModWatcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *ModWatcher) {
		w.logger = logger
	}
}

// New creates a watcher for resolver's directory. Reload requests are
// raised through a source registered on bus under owner.
func New(bus *event.Bus, owner event.Owner, resolver Resolver, cfg Config, opts ...Option) (*ModWatcher, error) {
	w := &ModWatcher{
		bus:       bus,
		owner:     owner,
		resolver:  resolver,
		config:    cfg,
		logger:    logging.Discard(),
		debouncer: NewDebouncer(cfg.Debounce),
		requests:  event.NewEmitter[*events.ModReloadRequested](),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watcher")

	if _, err := event.RegisterSource[*events.ModReloadRequested](bus, owner, w.requests); err != nil {
		return nil, fmt.Errorf("register reload source: %w", err)
	}

	fs, err := NewFSNotifyWatcher(cfg.BufferSize)
	if err != nil {
		_, _ = event.UnregisterSource[*events.ModReloadRequested](bus, owner, w.requests)
		return nil, err
	}
	if err := fs.WatchRecursive(resolver.Dir()); err != nil {
		fs.Close()
		_, _ = event.UnregisterSource[*events.ModReloadRequested](bus, owner, w.requests)
		return nil, fmt.Errorf("watch %s: %w", resolver.Dir(), err)
	}
	w.fs = fs

	return w, nil
}

// Run feeds file changes through the debouncer and publishes reload
// requests until ctx is done. Requests are published one at a time on the
// caller's goroutine.
func (w *ModWatcher) Run(ctx context.Context) error {
	w.logger.Info("watching %s", w.resolver.Dir())

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-w.fs.Events():
			if !ok {
				return nil
			}
			if mod, ok := w.resolver.ModFor(e.Path); ok {
				w.logger.Debug("%s %s", e.Op, e.Path)
				w.debouncer.Add(mod, e.Path)
			}

		case err, ok := <-w.fs.Errors():
			if !ok {
				return nil
			}
			w.logger.Warn("watch error: %v", err)

		case b := <-w.debouncer.Batches():
			w.Request(ctx, b.Mod, b.Paths...)
		}
	}
}

// Request publishes a reload request for mod unless the mod exceeded its
// rate limit. Reports whether the request was published and not canceled.
func (w *ModWatcher) Request(ctx context.Context, mod string, paths ...string) bool {
	if !w.allow(mod) {
		w.limited.Add(1)
		w.logger.Warn("reload of %s rate limited", mod)
		return false
	}

	changed := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(w.resolver.Dir(), p); err == nil {
			p = filepath.ToSlash(rel)
		}
		changed = append(changed, p)
	}

	evt := &events.ModReloadRequested{Name: mod, Changed: changed}
	w.published.Add(1)
	w.requests.Publish(ctx, evt)

	if evt.IsCanceled() {
		w.logger.Info("reload of %s vetoed", mod)
		return false
	}
	return true
}

func (w *ModWatcher) allow(mod string) bool {
	if w.config.ReloadsPerMinute <= 0 {
		return true
	}

	w.mu.Lock()
	limiter, ok := w.limiters[mod]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(w.config.ReloadsPerMinute)), w.config.ReloadsPerMinute)
		w.limiters[mod] = limiter
	}
	w.mu.Unlock()

	return limiter.Allow()
}

// Stats returns watcher statistics.
func (w *ModWatcher) Stats() Stats {
	stats := w.fs.Stats()
	stats.Requests = w.published.Load()
	stats.Limited = w.limited.Load()
	return stats
}

// Close stops watching and removes the reload source from the bus.
func (w *ModWatcher) Close() error {
	w.debouncer.Close()
	_, _ = event.UnregisterSource[*events.ModReloadRequested](w.bus, w.owner, w.requests)
	return w.fs.Close()
}
