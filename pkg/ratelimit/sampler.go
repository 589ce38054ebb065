package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SamplerConfig defines interval sampling configuration.
type SamplerConfig struct {
	// Interval is the minimum spacing between two admitted events of the
	// same kind. Zero or negative admits everything.
	Interval time.Duration
	// Now supplies the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultSamplerConfig returns the default sampling settings used for
// pointer movement streams.
func DefaultSamplerConfig() *SamplerConfig {
	return &SamplerConfig{
		Interval: 100 * time.Millisecond,
	}
}

// IntervalSampler admits at most one event per kind per interval. The
// spacing counts from the last admitted event, so a steady stream above
// the rate is thinned to exactly one admission per interval rather than
// being starved.
type IntervalSampler struct {
	interval  time.Duration
	now       func() time.Time
	mu        sync.Mutex
	lastAdmit map[string]time.Time
}

// NewIntervalSampler creates a sampler. A nil config uses
// DefaultSamplerConfig.
func NewIntervalSampler(config *SamplerConfig) *IntervalSampler {
	if config == nil {
		config = DefaultSamplerConfig()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &IntervalSampler{
		interval:  config.Interval,
		now:       now,
		lastAdmit: make(map[string]time.Time),
	}
}

// Allow reports whether an event of the given kind should be admitted
// now. The first event of a kind is always admitted; afterwards an event
// passes only once the interval has elapsed since the last admitted one.
// Rejected events do not move the clock.
func (s *IntervalSampler) Allow(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 {
		return true
	}

	now := s.now()
	last, seen := s.lastAdmit[kind]
	if seen && now.Sub(last) < s.interval {
		return false
	}
	s.lastAdmit[kind] = now
	return true
}

// SetInterval replaces the admission spacing. The next Allow observes
// the new value; admission history is kept.
func (s *IntervalSampler) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

// Reset forgets the admission history for a kind, so its next event is
// admitted unconditionally.
func (s *IntervalSampler) Reset(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastAdmit, kind)
}

// Cleanup drops kinds that have not admitted anything for olderThan.
// Keys are per session and kind at the collector, so idle sessions would
// otherwise pin their entries forever.
func (s *IntervalSampler) Cleanup(olderThan time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for kind, last := range s.lastAdmit {
		if now.Sub(last) > olderThan {
			delete(s.lastAdmit, kind)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *IntervalSampler) StartCleanup(ctx context.Context, every, olderThan time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup(olderThan)
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
