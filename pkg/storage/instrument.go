package storage

import (
	"context"
	"errors"
	"time"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/session"
)

// instrumentedStore records operation counts, latencies, and error types for
// whichever backend it wraps.
type instrumentedStore struct {
	Store

	metrics *observability.Metrics
}

// WithMetrics wraps store with prometheus instrumentation. A nil metrics
// registry returns the store unwrapped.
func WithMetrics(store Store, metrics *observability.Metrics) Store {
	if metrics == nil {
		return store
	}
	return &instrumentedStore{Store: store, metrics: metrics}
}

// Unwrap returns the wrapped store.
func (s *instrumentedStore) Unwrap() Store { return s.Store }

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	backend := s.Store.Name()

	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
		s.metrics.StorageErrorsTotal.WithLabelValues(op, backend, errorType(err)).Inc()
	}

	s.metrics.StorageOperationsTotal.WithLabelValues(op, backend, status).Inc()
	s.metrics.StorageOperationDuration.WithLabelValues(op, backend).Observe(time.Since(start).Seconds())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "backend"
	}
}

func (s *instrumentedStore) Save(ctx context.Context, snap *session.Snapshot) error {
	start := time.Now()
	err := s.Store.Save(ctx, snap)
	s.observe("save", start, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	start := time.Now()
	snap, err := s.Store.Get(ctx, id)
	s.observe("get", start, err)
	return snap, err
}

func (s *instrumentedStore) List(ctx context.Context) ([]SessionInfo, error) {
	start := time.Now()
	infos, err := s.Store.List(ctx)
	s.observe("list", start, err)
	return infos, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}
