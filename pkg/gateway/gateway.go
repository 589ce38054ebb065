package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/foliotrace/foliotrace/pkg/async"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/session"
	"github.com/foliotrace/foliotrace/pkg/storage"
)

const (
	triggerDebounced = "debounced"
	triggerFlush     = "flush"
)

// Config holds the gateway's write-coalescing knobs.
type Config struct {
	// Debounce is the quiet window before a pending snapshot is written.
	// Rapid Save calls inside the window collapse to the last snapshot.
	// Non-positive writes every Save immediately.
	Debounce time.Duration

	// SaveTimeout bounds each background storage write.
	SaveTimeout time.Duration
}

// DefaultConfig returns the standard gateway settings.
func DefaultConfig() Config {
	return Config{
		Debounce:    400 * time.Millisecond,
		SaveTimeout: 5 * time.Second,
	}
}

// Gateway coalesces snapshot writes on their way to the store. Trackers
// call Save freely (the 1 Hz refresh loop, every mutation burst); the
// gateway debounces per session and writes the latest snapshot once the
// calls go quiet. Persistence is advisory: background write failures are
// logged and swallowed, the session continues in memory.
//
// Flush is the synchronous escape hatch for lifecycle edges (session
// close, shutdown) where the caller wants the write on disk before
// moving on and decides itself what to do with a failure.
type Gateway struct {
	store   storage.Store
	config  Config
	logger  *observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	pending map[string]*pendingSave
	stopped bool
}

// pendingSave is one session's debounced write slot: the latest
// unwritten snapshot plus the timer that will carry it to the store.
type pendingSave struct {
	debounce *ratelimit.Debouncer

	mu   sync.Mutex
	snap *session.Snapshot
}

// New creates a gateway writing through to store. Metrics may be nil.
func New(store storage.Store, config Config, logger *observability.Logger, metrics *observability.Metrics) *Gateway {
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = DefaultConfig().SaveTimeout
	}
	return &Gateway{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		pending: make(map[string]*pendingSave),
	}
}

// Save queues snap for a debounced background write. A snapshot already
// waiting for the same session is replaced, never queued behind.
func (g *Gateway) Save(id string, snap *session.Snapshot) {
	if snap == nil {
		return
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	p, ok := g.pending[id]
	if !ok {
		p = &pendingSave{}
		p.debounce = ratelimit.NewDebouncer(g.config.Debounce, func() { g.writePending(p) })
		g.pending[id] = p
	}
	g.mu.Unlock()

	p.mu.Lock()
	if p.snap != nil && g.metrics != nil {
		g.metrics.SavesCoalescedTotal.Inc()
	}
	p.snap = snap
	p.mu.Unlock()

	p.debounce.Trigger()
}

// Flush writes snap synchronously and reports the result. Any pending
// debounced write for the session is discarded first: snap is newer than
// whatever the timer was holding. Callers on the ingest path typically
// log the error and move on.
func (g *Gateway) Flush(ctx context.Context, id string, snap *session.Snapshot) error {
	g.mu.Lock()
	p, ok := g.pending[id]
	delete(g.pending, id)
	g.mu.Unlock()

	if ok {
		p.debounce.Stop()
		p.mu.Lock()
		p.snap = nil
		p.mu.Unlock()
	}

	if snap == nil {
		return nil
	}
	return g.write(ctx, snap, triggerFlush)
}

// Stop flushes every pending snapshot synchronously and rejects further
// Saves. Sessions closed through the registry have already flushed; this
// catches writes still sitting on debounce timers at shutdown.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopped = true
	pending := g.pending
	g.pending = make(map[string]*pendingSave)
	g.mu.Unlock()

	var firstErr error
	for _, p := range pending {
		p.debounce.Stop()

		p.mu.Lock()
		snap := p.snap
		p.snap = nil
		p.mu.Unlock()

		if snap == nil {
			continue
		}
		if err := g.write(ctx, snap, triggerFlush); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetDebounce replaces the quiet window for subsequent saves, including
// sessions that already have a pending slot.
func (g *Gateway) SetDebounce(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.config.Debounce = d
	for _, p := range g.pending {
		p.debounce.SetDelay(d)
	}
}

// Pending reports whether a debounced write is waiting for the session.
func (g *Gateway) Pending(id string) bool {
	g.mu.Lock()
	p, ok := g.pending[id]
	g.mu.Unlock()
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap != nil
}

// writePending runs on the debounce timer: it claims the waiting
// snapshot and hands it to a supervised goroutine for the actual write.
func (g *Gateway) writePending(p *pendingSave) {
	p.mu.Lock()
	snap := p.snap
	p.snap = nil
	p.mu.Unlock()

	if snap == nil {
		return
	}

	async.SafeGo(context.Background(), g.config.SaveTimeout, "snapshot save", func(ctx context.Context) error {
		g.write(ctx, snap, triggerDebounced)
		// Already logged; returning it would log twice.
		return nil
	})
}

func (g *Gateway) write(ctx context.Context, snap *session.Snapshot, trigger string) error {
	start := time.Now()
	err := g.store.Save(ctx, snap)

	if g.metrics != nil {
		g.metrics.SaveDuration.Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.SavesTotal.WithLabelValues(trigger, status).Inc()
	}

	if err != nil {
		g.logger.WithSession(snap.ID).WithError(err).Warn("Snapshot save failed")
		return err
	}
	return nil
}
