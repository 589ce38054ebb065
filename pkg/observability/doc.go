// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, and distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Infof("Collector listening on :%d", 8080)
//
// Context-aware logging:
//
//	logger.WithSession(sessionID).WithError(err).Error("Snapshot save failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.EventsRecordedTotal.WithLabelValues("scroll").Inc()
//	metrics.SaveDuration.Observe(0.012)
//
// Tracking metrics:
//
//	metrics.ActiveSessions.Set(float64(registry.Len()))
//	metrics.SavesCoalescedTotal.Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(store, "postgres", version).WithDB(db)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:        true,
//		ServiceName:    "foliotrace-collector",
//		ServiceVersion: "v1.0.0",
//		Endpoint:       "otel-collector:4317",
//		SampleRatio:    0.1,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: Request logging and metrics middleware
package observability
