package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines token bucket settings for the HTTP collector.
type Config struct {
	// RequestsPerWindow is the sustained request budget per window.
	RequestsPerWindow int
	// WindowDuration is the refill window.
	WindowDuration time.Duration
	// BurstSize allows short bursts above the sustained rate. Viewer
	// clients batch interactions, so bursts are the normal case.
	BurstSize int
}

// DefaultConfig returns ingest-appropriate limits: viewers flushing a
// batch every few seconds stay far under it, replay floods do not.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         120,
	}
}

// Limiter is a per-key token bucket. Buckets are created lazily on first
// use and refill continuously at the sustained rate up to the burst cap.
type Limiter struct {
	config  *Config
	buckets map[string]*bucket
	mu      sync.RWMutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewLimiter creates a limiter. A nil config uses DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for the given key may proceed, spending
// one token when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     l.config.RequestsPerWindow + l.config.BurstSize,
			lastUpdate: time.Now(),
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	refill := int(elapsed.Seconds() * float64(l.config.RequestsPerWindow) / l.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens += refill
		if max := l.config.RequestsPerWindow + l.config.BurstSize; b.tokens > max {
			b.tokens = max
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for a key without spending one.
func (l *Limiter) Remaining(key string) int {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		return l.config.RequestsPerWindow + l.config.BurstSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Limit returns the configured sustained budget.
func (l *Limiter) Limit() int { return l.config.RequestsPerWindow }

// Window returns the configured refill window.
func (l *Limiter) Window() time.Duration { return l.config.WindowDuration }

// Cleanup removes buckets idle for more than two windows.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > l.config.WindowDuration*2 {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup prunes idle buckets once per window until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
