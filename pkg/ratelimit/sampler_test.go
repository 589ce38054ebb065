package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testClock is a manually advanced clock for deterministic sampling tests.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSampler(interval time.Duration) (*IntervalSampler, *testClock) {
	clock := newTestClock()
	return NewIntervalSampler(&SamplerConfig{Interval: interval, Now: clock.Now}), clock
}

func TestSamplerAdmitsFirstEvent(t *testing.T) {
	s, _ := newTestSampler(100 * time.Millisecond)
	assert.True(t, s.Allow("mouse_movement"))
}

func TestSamplerRejectsWithinInterval(t *testing.T) {
	s, clock := newTestSampler(100 * time.Millisecond)

	assert.True(t, s.Allow("mouse_movement"))
	clock.Advance(40 * time.Millisecond)
	assert.False(t, s.Allow("mouse_movement"))
	clock.Advance(59 * time.Millisecond)
	assert.False(t, s.Allow("mouse_movement"))
	clock.Advance(time.Millisecond)
	assert.True(t, s.Allow("mouse_movement"), "exactly one interval after the last admit")
}

func TestSamplerRejectionsDoNotMoveClock(t *testing.T) {
	s, clock := newTestSampler(100 * time.Millisecond)

	assert.True(t, s.Allow("mouse_movement"))
	// A burst of rejected events must not push back the next admission.
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		assert.False(t, s.Allow("mouse_movement"))
	}
	clock.Advance(50 * time.Millisecond)
	assert.True(t, s.Allow("mouse_movement"), "100ms since the admitted event")
}

func TestSamplerKindsAreIndependent(t *testing.T) {
	s, clock := newTestSampler(100 * time.Millisecond)

	assert.True(t, s.Allow("mouse_movement"))
	clock.Advance(10 * time.Millisecond)
	assert.True(t, s.Allow("scroll"), "a different kind has its own clock")
	assert.False(t, s.Allow("mouse_movement"))
}

func TestSamplerZeroIntervalAdmitsEverything(t *testing.T) {
	s, _ := newTestSampler(0)
	for i := 0; i < 10; i++ {
		assert.True(t, s.Allow("mouse_movement"))
	}
}

func TestSamplerReset(t *testing.T) {
	s, clock := newTestSampler(100 * time.Millisecond)

	assert.True(t, s.Allow("mouse_movement"))
	clock.Advance(10 * time.Millisecond)
	assert.False(t, s.Allow("mouse_movement"))

	s.Reset("mouse_movement")
	assert.True(t, s.Allow("mouse_movement"), "reset forgets the admission history")
}

func TestSamplerCleanup(t *testing.T) {
	s, clock := newTestSampler(100 * time.Millisecond)

	assert.True(t, s.Allow("stale"))
	clock.Advance(time.Hour)
	assert.True(t, s.Allow("fresh"))

	s.Cleanup(30 * time.Minute)

	s.mu.Lock()
	_, staleKept := s.lastAdmit["stale"]
	_, freshKept := s.lastAdmit["fresh"]
	s.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, freshKept)
}

func TestDefaultSamplerConfig(t *testing.T) {
	cfg := DefaultSamplerConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.Interval)

	s := NewIntervalSampler(nil)
	assert.Equal(t, 100*time.Millisecond, s.interval)
}
