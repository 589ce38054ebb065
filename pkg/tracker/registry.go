package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foliotrace/foliotrace/pkg/async"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/session"
)

// ErrSessionNotFound is returned for operations on a session the
// registry is not tracking.
var ErrSessionNotFound = errors.New("session not tracked")

const (
	closeReasonAPI      = "api"
	closeReasonShutdown = "shutdown"

	closeWorkers = 4
)

// RegistryConfig holds the collector-wide tracking knobs shared by
// every session.
type RegistryConfig struct {
	// Tracker is applied to each opened session.
	Tracker Config

	// MovementInterval is the minimum spacing between admitted pointer
	// movement samples, enforced per session by one shared sampler.
	// Non-positive uses the sampler default.
	MovementInterval time.Duration

	// CloseTimeout bounds each final flush during CloseAll.
	CloseTimeout time.Duration
}

// DefaultRegistryConfig returns the standard collector settings.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Tracker:          DefaultConfig(),
		MovementInterval: ratelimit.DefaultSamplerConfig().Interval,
		CloseTimeout:     10 * time.Second,
	}
}

// Registry hosts the live trackers, keyed by session ID. The browser
// original holds one ambient session per tab; the collector hosts many
// and hands them out by handle. Nothing is restored from storage on
// start: sessions are per-load, a restarted collector starts empty.
type Registry struct {
	ctx     context.Context
	config  RegistryConfig
	persist Persister
	sampler *ratelimit.IntervalSampler
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	trackers map[string]*Tracker
	closed   bool
}

// NewRegistry creates a registry. ctx scopes the background refresh
// loops of every tracker opened through it; persist and metrics may be
// nil with the same meaning as in New.
func NewRegistry(ctx context.Context, config RegistryConfig, persist Persister, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		ctx:     ctx,
		config:  config,
		persist: persist,
		sampler: ratelimit.NewIntervalSampler(&ratelimit.SamplerConfig{
			Interval: config.MovementInterval,
		}),
		logger:   logger,
		metrics:  metrics,
		trackers: make(map[string]*Tracker),
	}
}

// Open starts tracking a new session for the named document and returns
// its tracker with the refresh loop already running.
func (r *Registry) Open(fileName string, totalPages int) (*Tracker, error) {
	sess := session.New(fileName, totalPages)
	t := New(sess, r.config.Tracker, r.persist, r.sampler, r.logger, r.metrics)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("registry is shut down")
	}
	r.trackers[sess.ID] = t
	count := len(r.trackers)
	r.mu.Unlock()

	t.Start(r.ctx)

	if r.metrics != nil {
		r.metrics.SessionsOpenedTotal.Inc()
		r.metrics.ActiveSessions.Set(float64(count))
	}
	r.logger.WithSession(sess.ID).WithFields(map[string]interface{}{
		"file_name":   fileName,
		"total_pages": totalPages,
	}).Info("Session opened")

	return t, nil
}

// Get returns the live tracker for id.
func (r *Registry) Get(id string) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trackers[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// Close finalizes the session and removes it from the registry. The
// session is gone from the live set regardless of the final flush
// outcome; a flush failure is logged and swallowed, matching the
// advisory persistence contract.
func (r *Registry) Close(ctx context.Context, id string) (*session.Snapshot, error) {
	r.mu.Lock()
	t, ok := r.trackers[id]
	delete(r.trackers, id)
	count := len(r.trackers)
	r.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	if err := t.Close(ctx); err != nil {
		r.logger.WithSession(id).WithError(err).Warn("Final flush failed")
	}
	if r.metrics != nil {
		r.metrics.SessionsClosedTotal.WithLabelValues(closeReasonAPI).Inc()
		r.metrics.ActiveSessions.Set(float64(count))
	}

	return t.Report(), nil
}

// CloseAll finalizes every live session concurrently, for shutdown. It
// returns after all final flushes have completed or timed out.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	trackers := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.trackers = make(map[string]*Tracker)
	r.mu.Unlock()

	if len(trackers) == 0 {
		if r.metrics != nil {
			r.metrics.ActiveSessions.Set(0)
		}
		return nil
	}

	r.logger.WithField("sessions", len(trackers)).Info("Closing all sessions")

	pool := async.NewWorkerPool(ctx, closeWorkers, "session close", r.config.CloseTimeout)
	for _, t := range trackers {
		t := t
		if err := pool.Submit(func(ctx context.Context) error {
			if err := t.Close(ctx); err != nil {
				return fmt.Errorf("session %s: %w", t.ID(), err)
			}
			return nil
		}); err != nil {
			r.logger.WithSession(t.ID()).WithError(err).Warn("Session close not submitted")
		}
	}

	err := pool.Shutdown(r.config.CloseTimeout)

	if r.metrics != nil {
		r.metrics.SessionsClosedTotal.WithLabelValues(closeReasonShutdown).Add(float64(len(trackers)))
		r.metrics.ActiveSessions.Set(0)
	}
	for {
		select {
		case flushErr := <-pool.Errors():
			r.logger.WithError(flushErr).Warn("Final flush failed")
		default:
			if err != nil {
				return fmt.Errorf("failed to close all sessions: %w", err)
			}
			return nil
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// SetMovementInterval replaces the movement sampling spacing shared by
// every live and future session.
func (r *Registry) SetMovementInterval(d time.Duration) {
	r.sampler.SetInterval(d)
}

// StartSamplerCleanup prunes admission history left behind by sessions
// that vanished without a close. Closed sessions reset their own entry;
// this loop catches the rest.
func (r *Registry) StartSamplerCleanup(ctx context.Context, every, olderThan time.Duration) {
	r.sampler.StartCleanup(ctx, every, olderThan)
}
