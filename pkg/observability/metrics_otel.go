package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. It mirrors the
// Prometheus surface for deployments that scrape through an OTLP
// collector instead of /metrics.
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	httpRequestSize     metric.Int64Histogram
	httpResponseSize    metric.Int64Histogram

	// Tracking metrics
	eventsRecorded  metric.Int64Counter
	sessionsActive  metric.Int64UpDownCounter
	sessionsClosed  metric.Int64Counter
	bufferEvictions metric.Int64Counter

	// Persistence metrics
	savesTotal     metric.Int64Counter
	saveDuration   metric.Float64Histogram
	prunedSessions metric.Int64Counter

	// Cache metrics
	cacheHitsTotal      metric.Int64Counter
	cacheMissesTotal    metric.Int64Counter
	cacheEvictionsTotal metric.Int64Counter

	// Storage metrics
	storageOperations metric.Int64Counter
	storageDuration   metric.Float64Histogram
	storageBytes      metric.Int64Histogram
}

// NewOTelMetrics creates a new OTel metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/foliotrace/foliotrace")

	m := &OTelMetrics{}
	var err error

	// HTTP metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	m.httpRequestSize, err = meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_size histogram: %w", err)
	}

	m.httpResponseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_response_size histogram: %w", err)
	}

	// Tracking metrics
	m.eventsRecorded, err = meter.Int64Counter(
		"tracking.events.recorded",
		metric.WithDescription("Total number of interactions recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events_recorded counter: %w", err)
	}

	m.sessionsActive, err = meter.Int64UpDownCounter(
		"tracking.sessions.active",
		metric.WithDescription("Number of live tracking sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_active counter: %w", err)
	}

	m.sessionsClosed, err = meter.Int64Counter(
		"tracking.sessions.closed",
		metric.WithDescription("Total number of tracking sessions closed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_closed counter: %w", err)
	}

	m.bufferEvictions, err = meter.Int64Counter(
		"tracking.buffer.evictions",
		metric.WithDescription("Total number of oldest-event evictions from bounded buffers"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer_evictions counter: %w", err)
	}

	// Persistence metrics
	m.savesTotal, err = meter.Int64Counter(
		"persistence.saves.total",
		metric.WithDescription("Total number of snapshot save attempts"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create saves_total counter: %w", err)
	}

	m.saveDuration, err = meter.Float64Histogram(
		"persistence.save.duration",
		metric.WithDescription("Snapshot save duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create save_duration histogram: %w", err)
	}

	m.prunedSessions, err = meter.Int64Counter(
		"persistence.pruned.sessions",
		metric.WithDescription("Total number of stored sessions removed by retention pruning"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pruned_sessions counter: %w", err)
	}

	// Cache metrics
	m.cacheHitsTotal, err = meter.Int64Counter(
		"cache.hits.total",
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_hits_total counter: %w", err)
	}

	m.cacheMissesTotal, err = meter.Int64Counter(
		"cache.misses.total",
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_misses_total counter: %w", err)
	}

	m.cacheEvictionsTotal, err = meter.Int64Counter(
		"cache.evictions.total",
		metric.WithDescription("Total number of cache evictions"),
		metric.WithUnit("{eviction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_evictions_total counter: %w", err)
	}

	// Storage metrics
	m.storageOperations, err = meter.Int64Counter(
		"storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_operations counter: %w", err)
	}

	m.storageDuration, err = meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_duration histogram: %w", err)
	}

	m.storageBytes, err = meter.Int64Histogram(
		"storage.bytes",
		metric.WithDescription("Storage operation bytes transferred"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_bytes histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if requestSize > 0 {
		m.httpRequestSize.Record(ctx, requestSize, metric.WithAttributes(attrs...))
	}
	if responseSize > 0 {
		m.httpResponseSize.Record(ctx, responseSize, metric.WithAttributes(attrs...))
	}
}

// RecordEvent records one accepted interaction
func (m *OTelMetrics) RecordEvent(ctx context.Context, eventType string) {
	m.eventsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
	))
}

// SessionOpened bumps the live session count
func (m *OTelMetrics) SessionOpened(ctx context.Context) {
	m.sessionsActive.Add(ctx, 1)
}

// SessionClosed drops the live session count and records the close reason
func (m *OTelMetrics) SessionClosed(ctx context.Context, reason string) {
	m.sessionsActive.Add(ctx, -1)
	m.sessionsClosed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordBufferEviction records one oldest-event eviction
func (m *OTelMetrics) RecordBufferEviction(ctx context.Context, buffer string) {
	m.bufferEvictions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("buffer", buffer),
	))
}

// RecordSave records a snapshot save attempt
func (m *OTelMetrics) RecordSave(ctx context.Context, trigger string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("error", err != nil),
	}
	m.savesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.saveDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPrune records sessions removed by retention pruning
func (m *OTelMetrics) RecordPrune(ctx context.Context, reason string, count int) {
	if count <= 0 {
		return
	}
	m.prunedSessions.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordCacheHit records a cache hit
func (m *OTelMetrics) RecordCacheHit(ctx context.Context, cacheType string) {
	m.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.type", cacheType),
	))
}

// RecordCacheMiss records a cache miss
func (m *OTelMetrics) RecordCacheMiss(ctx context.Context, cacheType string) {
	m.cacheMissesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.type", cacheType),
	))
}

// RecordCacheEviction records a cache eviction
func (m *OTelMetrics) RecordCacheEviction(ctx context.Context, cacheType string) {
	m.cacheEvictionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.type", cacheType),
	))
}

// RecordStorageOperation records a storage operation metric
func (m *OTelMetrics) RecordStorageOperation(ctx context.Context, operation, storageType string, duration time.Duration, bytes int64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("storage.operation", operation),
		attribute.String("storage.type", storageType),
		attribute.Bool("error", err != nil),
	}

	m.storageOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.storageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if bytes > 0 {
		m.storageBytes.Record(ctx, bytes, metric.WithAttributes(attrs...))
	}
}
