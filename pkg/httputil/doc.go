// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, report)
//	httputil.WriteCreated(w, sessionInfo)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid page number")
//	httputil.WriteNotFoundError(w, "session not found")
//	httputil.WriteConflict(w, "session already open")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req RecordPageViewRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	id, err := httputil.ParsePathString(r, "id")
//	page, err := httputil.ParsePathInt(r, "page")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	format := httputil.ParseQueryString(r, "format", "json")
//	pretty, err := httputil.ParseQueryBool(r, "pretty", false)
//
// # Validation
//
//	httputil.ValidateAll(w,
//		func() (bool, string) { return req.FileName != "", "fileName is required" },
//		func() (bool, string) { return req.TotalPages > 0, "totalPages must be positive" },
//	)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1024*1024), // 1MB
//	)
//
// # Related Packages
//
//   - pkg/api: HTTP handlers for session tracking and reporting
package httputil
