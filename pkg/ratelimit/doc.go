// Package ratelimit bounds event and request volume.
//
// # Overview
//
// Three admission strategies live here, all in-memory and per-process:
//
//   - IntervalSampler thins high-frequency UI event streams (pointer
//     movement) by admitting at most one event per kind per interval.
//   - Debouncer coalesces bursts of triggers into a single trailing
//     invocation, with explicit flush and cancel.
//   - Limiter is a token bucket keyed by caller, used by the HTTP
//     collector to protect the ingest endpoints.
//
// # Usage Example
//
//	sampler := ratelimit.NewIntervalSampler(nil)
//	if sampler.Allow("mouse_movement") {
//	    tracker.RecordInteraction(ctx, ev)
//	}
package ratelimit
