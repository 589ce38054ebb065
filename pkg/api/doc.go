// Package api is the HTTP collector surface of foliotrace.
//
// # Overview
//
// A document viewer integration reports what its user does through this
// API instead of an in-page analytics provider: open a session when the
// document loads, stream page views and interactions while it is read,
// flush on visibility changes, and close on unload. Reports render from
// the live session while it is open and from the stored snapshot after.
//
// # Routes
//
//	POST   /api/v1/sessions                   open a session
//	GET    /api/v1/sessions                   list stored sessions
//	DELETE /api/v1/sessions/{id}              finalize, flush, drop
//	POST   /api/v1/sessions/{id}/pageview     record a page change
//	POST   /api/v1/sessions/{id}/interactions record one event or a batch
//	PUT    /api/v1/sessions/{id}/heatmap      replace the heatmap
//	POST   /api/v1/sessions/{id}/flush        best-effort persist
//	GET    /api/v1/sessions/{id}/report       export (format=json|html|csv|ndjson)
//
// Ingest is deliberately forgiving: sampled-out movement events and
// unknown interaction types are not errors, and persistence failures
// surface in logs and readiness rather than in responses. Analytics
// must never get in the way of viewing the document.
//
// # Usage Example
//
//	srv := api.NewServer(api.DefaultConfig(), registry, store, gw, limiter, logger, metrics)
//	http.ListenAndServe(":8080", srv)
//
// The middleware chain covers panic recovery, request IDs, structured
// request logging, Prometheus instrumentation, CORS, body size caps,
// per-client ingest rate limiting, and optional OpenTelemetry tracing.
//
// # Related Packages
//
//   - pkg/tracker: the live sessions the ingest routes mutate
//   - pkg/report: renders the export formats
//   - pkg/storage: serves listings and closed-session reports
//   - pkg/httputil: request parsing, response writing, shared middleware
package api
