package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/storage"
)

const (
	pruneReasonAge   = "age"
	pruneReasonCount = "count"
)

// JanitorConfig bounds how much session history the store keeps.
type JanitorConfig struct {
	// MaxAge prunes sessions whose last activity is older. Zero disables
	// age pruning.
	MaxAge time.Duration

	// MaxSessions caps the number of stored sessions; the oldest beyond
	// the cap are pruned. Zero disables the cap.
	MaxSessions int

	// Interval is the sweep cadence for Start.
	Interval time.Duration
}

// DefaultJanitorConfig keeps a week of sessions, at most 500 of them,
// sweeping every minute.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		MaxAge:      7 * 24 * time.Hour,
		MaxSessions: 500,
		Interval:    60 * time.Second,
	}
}

// Janitor prunes stored sessions past their retention limits. It runs on
// a cron schedule inside the collector (Start/Stop) and as a one-shot
// sweep from the CLI (RunOnce).
type Janitor struct {
	store   storage.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	config JanitorConfig

	cron *cron.Cron
}

// NewJanitor creates a retention sweeper over store. Metrics may be nil.
func NewJanitor(store storage.Store, config JanitorConfig, logger *observability.Logger, metrics *observability.Metrics) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorConfig().Interval
	}
	return &Janitor{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// SetRetention replaces the pruning limits. The next sweep observes the
// new values; the sweep cadence is fixed at construction.
func (j *Janitor) SetRetention(maxAge time.Duration, maxSessions int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.config.MaxAge = maxAge
	j.config.MaxSessions = maxSessions
}

// RunOnce performs a single retention sweep and returns how many
// sessions it removed. Individual delete failures are logged and
// skipped; only a failed listing aborts the sweep.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	j.mu.Lock()
	maxAge, maxSessions := j.config.MaxAge, j.config.MaxSessions
	j.mu.Unlock()

	infos, err := j.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored sessions: %w", err)
	}

	now := time.Now()
	pruned := 0

	// Age pass first, so expired sessions do not occupy cap slots.
	kept := infos[:0]
	for _, info := range infos {
		if maxAge > 0 && now.Sub(info.LastActivity) > maxAge {
			if j.prune(ctx, info.ID, pruneReasonAge) {
				pruned++
			}
			continue
		}
		kept = append(kept, info)
	}

	// List is newest-activity first; everything past the cap is oldest.
	if maxSessions > 0 && len(kept) > maxSessions {
		for _, info := range kept[maxSessions:] {
			if j.prune(ctx, info.ID, pruneReasonCount) {
				pruned++
			}
		}
	}

	return pruned, nil
}

func (j *Janitor) prune(ctx context.Context, id, reason string) bool {
	err := j.store.Delete(ctx, id)
	switch {
	case err == nil:
		if j.metrics != nil {
			j.metrics.PrunedSessionsTotal.WithLabelValues(reason).Inc()
		}
		return true
	case errors.Is(err, storage.ErrNotFound):
		// Removed concurrently; the sweep's goal state holds.
		return true
	default:
		j.logger.WithSession(id).WithError(err).Warn("Retention delete failed")
		return false
	}
}

// Start schedules the sweep on a cron every Interval. Sweep failures are
// logged; the schedule keeps running.
func (j *Janitor) Start() error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", j.config.Interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.config.Interval)
		defer cancel()

		pruned, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.WithError(err).Warn("Retention sweep failed")
			return
		}
		if pruned > 0 {
			j.logger.WithField("pruned", pruned).Info("Retention sweep removed sessions")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	j.cron = c
	c.Start()

	j.mu.Lock()
	fields := map[string]interface{}{
		"interval":     j.config.Interval.String(),
		"max_age":      j.config.MaxAge.String(),
		"max_sessions": j.config.MaxSessions,
	}
	j.mu.Unlock()
	j.logger.WithFields(fields).Info("Retention janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}
