package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/ringbuf"
	"github.com/foliotrace/foliotrace/pkg/session"
)

const interactionBufferName = "interactions"

// Persister receives snapshots on their way to storage. Save is
// advisory fire-and-forget; Flush is synchronous and its error is the
// caller's to handle. *gateway.Gateway satisfies it.
type Persister interface {
	Save(id string, snap *session.Snapshot)
	Flush(ctx context.Context, id string, snap *session.Snapshot) error
}

// Config holds the per-session tracking knobs.
type Config struct {
	// BufferCapacity bounds the interaction history ring. Non-positive
	// uses ringbuf.DefaultCapacity.
	BufferCapacity int

	// SnapshotInterval is the cadence of the background refresh loop
	// that re-derives the live duration and hands a snapshot to the
	// persister. Non-positive uses one second.
	SnapshotInterval time.Duration

	// Now supplies the clock; defaults to time.Now. Tests inject one.
	Now func() time.Time
}

// DefaultConfig returns the standard tracking settings.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:   ringbuf.DefaultCapacity,
		SnapshotInterval: time.Second,
	}
}

// Tracker aggregates one viewing session: identity and timing, the
// page-view lifecycle, per-page interaction counters, the bounded
// interaction history, and the heatmap. Every mutation serializes
// through one mutex, so the invariants (at most one open PageView,
// FIFO interaction order) hold without caller coordination. Reads come
// out as deep-copied snapshots; nothing external can reach live state.
type Tracker struct {
	config  Config
	persist Persister
	sampler *ratelimit.IntervalSampler
	logger  *observability.Logger
	metrics *observability.Metrics

	now        func() time.Time
	samplerKey string

	mu      sync.Mutex
	sess    *session.Session
	history []session.PageView // finalized views, chronological
	open    *session.PageView  // current stay; nil before first page, after Close
	buffer  *ringbuf.Buffer[session.Interaction]
	heatmap session.Heatmap
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a tracker for sess. The persister and sampler may be nil:
// without a persister snapshots stay in memory, without a sampler every
// movement event is admitted. Metrics may be nil.
func New(sess *session.Session, config Config, persist Persister, sampler *ratelimit.IntervalSampler, logger *observability.Logger, metrics *observability.Metrics) *Tracker {
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = ringbuf.DefaultCapacity
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = time.Second
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if sampler == nil {
		sampler = ratelimit.NewIntervalSampler(&ratelimit.SamplerConfig{})
	}

	return &Tracker{
		config:     config,
		persist:    persist,
		sampler:    sampler,
		logger:     logger,
		metrics:    metrics,
		now:        now,
		samplerKey: sess.ID + ":" + session.ActionMouseMovement,
		sess:       sess,
		buffer:     ringbuf.New[session.Interaction](config.BufferCapacity),
	}
}

// ID returns the session identifier.
func (t *Tracker) ID() string { return t.sess.ID }

// RecordPageView closes the current stay, files it into history, and
// opens a fresh PageView for page with zeroed counters. A navigate
// interaction carrying the page transition is recorded; its FromPage is
// nil on the first navigation.
func (t *Tracker) RecordPageView(page int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	now := t.now()

	var fromPage *int
	if t.open != nil {
		from := t.open.PageNumber
		fromPage = &from

		t.open.CloseAt(now)
		t.history = filePageView(t.history, *t.open)
	}

	t.open = &session.PageView{PageNumber: page, StartTime: now}

	t.recordLocked(session.Interaction{
		Type:       session.InteractionNavigate,
		Timestamp:  now,
		PageNumber: page,
		Details:    session.NavigateDetails{FromPage: fromPage, ToPage: page},
	})
}

// filePageView puts a finalized view into history: a still-open record
// for the same page is replaced, otherwise the view is appended. Filing
// happens exactly once per close, so a page can never accumulate
// duplicate finalized records.
func filePageView(history []session.PageView, closed session.PageView) []session.PageView {
	for i := range history {
		if history[i].PageNumber == closed.PageNumber && history[i].Open() {
			history[i] = closed
			return history
		}
	}
	return append(history, closed)
}

// RecordInteraction stamps the event with the current time and page,
// pushes it into the bounded history, and bumps the matching counter on
// the open PageView. Movement samples must pass the interval sampler
// first; rejection is a silent no-op, not an error. It reports whether
// the event was recorded.
func (t *Tracker) RecordInteraction(typ session.InteractionType, details session.Details) bool {
	ev := session.Interaction{Type: typ, Details: details}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	if ev.IsMouseMovement() && !t.sampler.Allow(t.samplerKey) {
		if t.metrics != nil {
			t.metrics.EventsSampledOutTotal.WithLabelValues(session.ActionMouseMovement).Inc()
		}
		return false
	}

	ev.Timestamp = t.now()
	ev.PageNumber = t.currentPageLocked()
	t.recordLocked(ev)

	if t.open != nil {
		switch {
		case typ == session.InteractionScroll:
			t.open.ScrollEvents++
		case typ == session.InteractionZoom:
			t.open.ZoomChanges++
		case typ == session.InteractionRotate:
			t.open.RotationChanges++
		case ev.IsMouseMovement():
			t.open.MouseMovements++
		}
	}
	return true
}

// currentPageLocked is the page interactions attribute to: the open
// stay's page, or page 1 when the host never supplied a page context.
// Interactions are never dropped for lack of one.
func (t *Tracker) currentPageLocked() int {
	if t.open != nil {
		return t.open.PageNumber
	}
	return 1
}

// recordLocked pushes ev into the ring and keeps the metrics honest
// about what the ring silently dropped.
func (t *Tracker) recordLocked(ev session.Interaction) {
	evicting := t.buffer.Len() == t.buffer.Cap()
	t.buffer.Push(ev)

	if t.metrics != nil {
		t.metrics.EventsRecordedTotal.WithLabelValues(string(ev.Type)).Inc()
		if evicting {
			t.metrics.BufferEvictionsTotal.WithLabelValues(interactionBufferName).Inc()
		}
	}
}

// UpdateHeatmap replaces the session's heatmap, but only when the
// serialized content actually differs; a high-frequency producer
// re-sending identical data causes no state churn. It reports whether
// the heatmap changed.
func (t *Tracker) UpdateHeatmap(data session.Heatmap) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.heatmap.Equal(data) {
		return false
	}
	t.heatmap = data.Clone()
	return true
}

// Report returns an immutable snapshot of the session. On a live
// session the snapshot's EndTime is now and TotalDurationMs is derived
// from it; the live state is not touched, so two calls without an
// intervening mutation differ only in those time-derived fields. On a
// closed session the finalized values are preserved.
func (t *Tracker) Report() *session.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reportLocked(t.now())
}

func (t *Tracker) reportLocked(now time.Time) *session.Snapshot {
	snap := &session.Snapshot{
		Session:      *t.sess.Clone(),
		Interactions: t.buffer.Snapshot(),
		Heatmap:      t.heatmap.Clone(),
	}

	snap.PageViews = make([]session.PageView, 0, len(t.history)+1)
	for i := range t.history {
		snap.PageViews = append(snap.PageViews, *t.history[i].Clone())
	}
	if t.open != nil {
		snap.PageViews = append(snap.PageViews, *t.open.Clone())
	}

	if !t.closed {
		end := now
		snap.EndTime = &end
		snap.TotalDurationMs = now.Sub(t.sess.StartTime).Milliseconds()
	}
	return snap
}

// Start launches the background refresh loop: every SnapshotInterval it
// re-derives the live TotalDurationMs and hands the latest snapshot to
// the persister. The loop stops when ctx is canceled or the tracker is
// closed. Starting twice or after Close is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.closed || t.done != nil {
		t.mu.Unlock()
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		defer observability.RecoverPanic(t.logger, "tracker refresh loop")

		ticker := time.NewTicker(t.config.SnapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

// tick is the loop body: the only periodic mutation source besides
// user-driven calls.
func (t *Tracker) tick() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	now := t.now()
	t.sess.TotalDurationMs = now.Sub(t.sess.StartTime).Milliseconds()
	snap := t.reportLocked(now)
	id := t.sess.ID
	t.mu.Unlock()

	if t.persist != nil {
		t.persist.Save(id, snap)
	}
}

// Close finalizes the session: the open PageView is closed and filed,
// EndTime and the total duration are stamped, the refresh loop stops,
// and the final snapshot is flushed synchronously. The returned error
// is the flush result; the session is closed regardless, and callers on
// a teardown path typically log it and move on. Closing twice is a
// no-op returning nil.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	now := t.now()
	if t.open != nil {
		t.open.CloseAt(now)
		t.history = filePageView(t.history, *t.open)
		t.open = nil
	}
	t.sess.Finalize(now)

	snap := t.reportLocked(now)
	id := t.sess.ID
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	t.sampler.Reset(t.samplerKey)

	if t.persist == nil {
		return nil
	}
	return t.persist.Flush(ctx, id, snap)
}
