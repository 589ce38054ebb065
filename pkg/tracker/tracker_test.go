package tracker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/session"
)

// testClock is a manually advanced clock shared by a tracker and its
// sampler in deterministic tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakePersister records what the tracker hands to persistence.
type fakePersister struct {
	mu       sync.Mutex
	saves    []*session.Snapshot
	flushes  []*session.Snapshot
	flushErr error
}

func (f *fakePersister) Save(id string, snap *session.Snapshot) {
	f.mu.Lock()
	f.saves = append(f.saves, snap)
	f.mu.Unlock()
}

func (f *fakePersister) Flush(ctx context.Context, id string, snap *session.Snapshot) error {
	f.mu.Lock()
	f.flushes = append(f.flushes, snap)
	err := f.flushErr
	f.mu.Unlock()
	return err
}

func (f *fakePersister) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakePersister) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flushes)
}

func (f *fakePersister) lastFlush() *session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.flushes) == 0 {
		return nil
	}
	return f.flushes[len(f.flushes)-1]
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// newTestTracker builds a tracker on a manual clock with an
// admit-everything sampler.
func newTestTracker(t *testing.T) (*Tracker, *testClock, *fakePersister) {
	t.Helper()
	clock := newTestClock()
	persist := &fakePersister{}
	sess := session.NewAt("report.pdf", 12, clock.Now())
	tr := New(sess, Config{Now: clock.Now}, persist, nil, testLogger(), nil)
	return tr, clock, persist
}

func openPageViews(snap *session.Snapshot) int {
	open := 0
	for _, pv := range snap.PageViews {
		if pv.Open() {
			open++
		}
	}
	return open
}

func TestTracker_FirstPageViewOpensStay(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	tr.RecordPageView(1)

	snap := tr.Report()
	require.Len(t, snap.PageViews, 1)
	assert.Equal(t, 1, snap.PageViews[0].PageNumber)
	assert.True(t, snap.PageViews[0].Open())
	assert.Zero(t, snap.PageViews[0].MouseMovements, "fresh stay starts with zeroed counters")
}

func TestTracker_NavigationClosesPreviousStay(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	tr.RecordPageView(1)
	clock.Advance(30 * time.Second)
	tr.RecordPageView(2)

	snap := tr.Report()
	require.Len(t, snap.PageViews, 2)

	first := snap.PageViews[0]
	assert.Equal(t, 1, first.PageNumber)
	assert.False(t, first.Open())
	assert.Equal(t, int64(30_000), first.TotalTimeMs)

	second := snap.PageViews[1]
	assert.Equal(t, 2, second.PageNumber)
	assert.True(t, second.Open())
}

func TestTracker_AtMostOneOpenPageView(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	for _, page := range []int{1, 2, 2, 3, 1, 5} {
		tr.RecordPageView(page)
		clock.Advance(7 * time.Second)
		assert.LessOrEqual(t, openPageViews(tr.Report()), 1)
	}
}

func TestTracker_RevisitedPageGetsItsOwnStay(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	tr.RecordPageView(1)
	clock.Advance(10 * time.Second)
	tr.RecordPageView(2)
	clock.Advance(5 * time.Second)
	tr.RecordPageView(1)
	clock.Advance(20 * time.Second)
	tr.RecordPageView(3)

	snap := tr.Report()
	require.Len(t, snap.PageViews, 4)
	assert.Equal(t, int64(10_000), snap.PageViews[0].TotalTimeMs, "first page 1 visit")
	assert.Equal(t, int64(20_000), snap.PageViews[2].TotalTimeMs, "second page 1 visit is a separate record")
	assert.Equal(t, 1, openPageViews(snap))
}

func TestTracker_NavigateInteractions(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	tr.RecordPageView(1)
	tr.RecordPageView(2)

	snap := tr.Report()
	require.Len(t, snap.Interactions, 2)

	first := snap.Interactions[0]
	assert.Equal(t, session.InteractionNavigate, first.Type)
	firstDetails, ok := first.Details.(session.NavigateDetails)
	require.True(t, ok)
	assert.Nil(t, firstDetails.FromPage, "no prior page on the first navigation")
	assert.Equal(t, 1, firstDetails.ToPage)

	second := snap.Interactions[1]
	secondDetails, ok := second.Details.(session.NavigateDetails)
	require.True(t, ok)
	require.NotNil(t, secondDetails.FromPage)
	assert.Equal(t, 1, *secondDetails.FromPage)
	assert.Equal(t, 2, secondDetails.ToPage)
}

func TestTracker_CounterFidelity(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	tr.RecordPageView(1)

	for i := 0; i < 3; i++ {
		tr.RecordInteraction(session.InteractionScroll, session.ScrollDetails{Direction: "down", Delta: 120})
	}
	for i := 0; i < 2; i++ {
		tr.RecordInteraction(session.InteractionZoom, session.ZoomDetails{Scale: 1.5})
	}
	tr.RecordInteraction(session.InteractionRotate, session.RotateDetails{Degrees: 90})
	for i := 0; i < 4; i++ {
		tr.RecordInteraction(session.InteractionClick, session.PointerDetails{X: 0.5, Y: 0.5, Action: session.ActionMouseMovement})
	}
	// Neither real clicks nor snips touch a counter.
	tr.RecordInteraction(session.InteractionClick, session.PointerDetails{X: 0.1, Y: 0.2})
	tr.RecordInteraction(session.InteractionSnip, session.SnipDetails{X: 0, Y: 0, Width: 0.4, Height: 0.3})

	snap := tr.Report()
	require.Len(t, snap.PageViews, 1)
	pv := snap.PageViews[0]
	assert.Equal(t, 3, pv.ScrollEvents)
	assert.Equal(t, 2, pv.ZoomChanges)
	assert.Equal(t, 1, pv.RotationChanges)
	assert.Equal(t, 4, pv.MouseMovements)

	// The navigate event plus 12 recorded interactions.
	assert.Len(t, snap.Interactions, 13)
}

func TestTracker_MovementSamplingThinsTheStream(t *testing.T) {
	clock := newTestClock()
	sampler := ratelimit.NewIntervalSampler(&ratelimit.SamplerConfig{
		Interval: 100 * time.Millisecond,
		Now:      clock.Now,
	})
	sess := session.NewAt("report.pdf", 12, clock.Now())
	tr := New(sess, Config{Now: clock.Now}, nil, sampler, testLogger(), nil)
	tr.RecordPageView(1)

	movement := session.PointerDetails{X: 0.5, Y: 0.5, Action: session.ActionMouseMovement}

	assert.True(t, tr.RecordInteraction(session.InteractionClick, movement))
	clock.Advance(40 * time.Millisecond)
	assert.False(t, tr.RecordInteraction(session.InteractionClick, movement), "inside the interval")
	clock.Advance(60 * time.Millisecond)
	assert.True(t, tr.RecordInteraction(session.InteractionClick, movement))

	// Real clicks bypass the movement gate entirely.
	assert.True(t, tr.RecordInteraction(session.InteractionClick, session.PointerDetails{X: 0.1, Y: 0.1}))

	snap := tr.Report()
	require.Len(t, snap.PageViews, 1)
	assert.Equal(t, 2, snap.PageViews[0].MouseMovements, "the rejected sample counted nowhere")
}

func TestTracker_SampledOutMetric(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	clock := newTestClock()
	sampler := ratelimit.NewIntervalSampler(&ratelimit.SamplerConfig{
		Interval: 100 * time.Millisecond,
		Now:      clock.Now,
	})
	sess := session.NewAt("report.pdf", 12, clock.Now())
	tr := New(sess, Config{Now: clock.Now}, nil, sampler, testLogger(), m)

	movement := session.PointerDetails{Action: session.ActionMouseMovement}
	tr.RecordInteraction(session.InteractionClick, movement)
	tr.RecordInteraction(session.InteractionClick, movement)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.EventsSampledOutTotal.WithLabelValues(session.ActionMouseMovement)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.EventsRecordedTotal.WithLabelValues(string(session.InteractionClick))))
}

func TestTracker_InteractionWithoutPageContext(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	recorded := tr.RecordInteraction(session.InteractionScroll, session.ScrollDetails{Direction: "up"})

	assert.True(t, recorded, "interactions are never dropped for lack of page context")
	snap := tr.Report()
	require.Len(t, snap.Interactions, 1)
	assert.Equal(t, 1, snap.Interactions[0].PageNumber)
	assert.Empty(t, snap.PageViews)
}

func TestTracker_BufferOverflowKeepsNewest(t *testing.T) {
	clock := newTestClock()
	sess := session.NewAt("report.pdf", 12, clock.Now())
	tr := New(sess, Config{BufferCapacity: 5, Now: clock.Now}, nil, nil, testLogger(), nil)

	for i := 1; i <= 8; i++ {
		tr.RecordInteraction(session.InteractionScroll, session.ScrollDetails{Delta: float64(i)})
	}

	snap := tr.Report()
	require.Len(t, snap.Interactions, 5)
	for i, ev := range snap.Interactions {
		details, ok := ev.Details.(session.ScrollDetails)
		require.True(t, ok)
		assert.Equal(t, float64(i+4), details.Delta, "events 4..8 survive in order")
	}
}

func TestTracker_BufferEvictionMetric(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	clock := newTestClock()
	sess := session.NewAt("report.pdf", 12, clock.Now())
	tr := New(sess, Config{BufferCapacity: 3, Now: clock.Now}, nil, nil, testLogger(), m)

	for i := 0; i < 5; i++ {
		tr.RecordInteraction(session.InteractionScroll, nil)
	}

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.BufferEvictionsTotal.WithLabelValues(interactionBufferName)))
}

func TestTracker_UpdateHeatmap(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	first := session.Heatmap{1: {{X: 0.5, Y: 0.25, Weight: 1}}}
	assert.True(t, tr.UpdateHeatmap(first))

	// Same content in a fresh map: no change.
	same := session.Heatmap{1: {{X: 0.5, Y: 0.25, Weight: 1}}}
	assert.False(t, tr.UpdateHeatmap(same))

	changed := session.Heatmap{1: {{X: 0.5, Y: 0.25, Weight: 2}}}
	assert.True(t, tr.UpdateHeatmap(changed))
}

func TestTracker_HeatmapIsCopiedIn(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	data := session.Heatmap{1: {{X: 0.5, Y: 0.25, Weight: 1}}}
	require.True(t, tr.UpdateHeatmap(data))

	data[1][0].Weight = 99
	data[2] = []session.HeatPoint{{X: 0.1, Y: 0.1, Weight: 1}}

	snap := tr.Report()
	require.Len(t, snap.Heatmap, 1)
	assert.Equal(t, float64(1), snap.Heatmap[1][0].Weight, "caller mutations stay outside")
}

func TestTracker_ReportPurity(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	tr.RecordPageView(1)
	tr.RecordInteraction(session.InteractionScroll, session.ScrollDetails{Direction: "down"})
	require.True(t, tr.UpdateHeatmap(session.Heatmap{1: {{X: 0.5, Y: 0.5, Weight: 1}}}))

	first := tr.Report()
	clock.Advance(5 * time.Second)
	second := tr.Report()

	assert.Equal(t, first.PageViews, second.PageViews)
	assert.Equal(t, first.Interactions, second.Interactions)
	assert.Equal(t, first.Heatmap, second.Heatmap)
	assert.Equal(t, int64(5000), second.TotalDurationMs-first.TotalDurationMs,
		"only time-derived fields move")
	assert.Equal(t, 5*time.Second, second.EndTime.Sub(*first.EndTime))
}

func TestTracker_ReportIsIsolatedFromLiveState(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	tr.RecordPageView(1)
	require.True(t, tr.UpdateHeatmap(session.Heatmap{1: {{X: 0.5, Y: 0.5, Weight: 1}}}))

	snap := tr.Report()
	snap.PageViews[0].ScrollEvents = 999
	snap.Heatmap[1][0].Weight = 999
	snap.Interactions = append(snap.Interactions, session.Interaction{Type: session.InteractionSnip})

	fresh := tr.Report()
	assert.Zero(t, fresh.PageViews[0].ScrollEvents)
	assert.Equal(t, float64(1), fresh.Heatmap[1][0].Weight)
	assert.Len(t, fresh.Interactions, 1, "only the navigate event")
}

func TestTracker_CloseFinalizesAndFlushes(t *testing.T) {
	tr, clock, persist := newTestTracker(t)
	start := clock.Now()

	tr.RecordPageView(1)
	clock.Advance(90 * time.Second)

	require.NoError(t, tr.Close(context.Background()))

	require.Equal(t, 1, persist.flushCount(), "closing flushes synchronously")
	final := persist.lastFlush()
	require.NotNil(t, final.EndTime)
	assert.Equal(t, start.Add(90*time.Second), *final.EndTime)
	assert.Equal(t, int64(90_000), final.TotalDurationMs)
	assert.Zero(t, openPageViews(final), "the open stay is closed on the way out")
}

func TestTracker_ClosedTrackerRejectsMutations(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	tr.RecordPageView(1)
	require.NoError(t, tr.Close(context.Background()))

	closedAt := tr.Report().EndTime
	clock.Advance(time.Minute)

	assert.False(t, tr.RecordInteraction(session.InteractionScroll, nil))
	assert.False(t, tr.UpdateHeatmap(session.Heatmap{1: {{X: 1, Y: 1, Weight: 1}}}))
	tr.RecordPageView(2)

	snap := tr.Report()
	assert.Len(t, snap.PageViews, 1)
	assert.Len(t, snap.Interactions, 1)
	assert.Equal(t, *closedAt, *snap.EndTime, "a closed session's end does not drift")
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	tr, _, persist := newTestTracker(t)
	tr.RecordPageView(1)

	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()))

	assert.Equal(t, 1, persist.flushCount())
}

func TestTracker_CloseSurfacesFlushError(t *testing.T) {
	tr, _, persist := newTestTracker(t)
	persist.flushErr = errors.New("store unavailable")

	err := tr.Close(context.Background())
	assert.ErrorContains(t, err, "store unavailable")

	// The session is closed regardless; a retry does not re-flush.
	assert.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, 1, persist.flushCount())
}

func TestTracker_RefreshLoopHandsSnapshotsToPersister(t *testing.T) {
	persist := &fakePersister{}
	sess := session.New("report.pdf", 12)
	tr := New(sess, Config{SnapshotInterval: 20 * time.Millisecond}, persist, nil, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	tr.RecordPageView(1)

	assert.Eventually(t, func() bool { return persist.saveCount() >= 2 },
		2*time.Second, 10*time.Millisecond)

	persist.mu.Lock()
	snap := persist.saves[0]
	persist.mu.Unlock()
	assert.NotNil(t, snap.EndTime, "periodic snapshots carry a provisional end time")

	cancel()
	time.Sleep(50 * time.Millisecond)
	count := persist.saveCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, persist.saveCount(), "loop stops with its context")
}

func TestTracker_CloseStopsRefreshLoop(t *testing.T) {
	persist := &fakePersister{}
	sess := session.New("report.pdf", 12)
	tr := New(sess, Config{SnapshotInterval: 20 * time.Millisecond}, persist, nil, testLogger(), nil)

	tr.Start(context.Background())
	require.NoError(t, tr.Close(context.Background()))

	count := persist.saveCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, persist.saveCount(), "no periodic saves after close")
	assert.Equal(t, 1, persist.flushCount())
}

func TestFilePageView(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := now.Add(time.Minute)

	closed := session.PageView{PageNumber: 2, StartTime: now, EndTime: &end, TotalTimeMs: 60_000}

	t.Run("appends when no open record exists", func(t *testing.T) {
		history := []session.PageView{
			{PageNumber: 1, StartTime: now, EndTime: &end},
		}
		got := filePageView(history, closed)
		assert.Len(t, got, 2)
	})

	t.Run("replaces a still-open record for the same page", func(t *testing.T) {
		history := []session.PageView{
			{PageNumber: 1, StartTime: now, EndTime: &end},
			{PageNumber: 2, StartTime: now},
		}
		got := filePageView(history, closed)
		require.Len(t, got, 2, "replaced, not appended")
		assert.False(t, got[1].Open())
		assert.Equal(t, int64(60_000), got[1].TotalTimeMs)
	})

	t.Run("finalized record for the same page is not replaced", func(t *testing.T) {
		history := []session.PageView{
			{PageNumber: 2, StartTime: now.Add(-time.Hour), EndTime: &now, TotalTimeMs: 1000},
		}
		got := filePageView(history, closed)
		require.Len(t, got, 2, "a revisit is its own record")
		assert.Equal(t, int64(1000), got[0].TotalTimeMs)
	})
}
