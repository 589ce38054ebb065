// Package tracker aggregates viewing sessions from interaction streams.
//
// # Overview
//
// A Tracker owns one session's mutable state: identity and timing, the
// page-view lifecycle with its per-page counters, the bounded
// interaction history, and the heatmap. All mutation entry points
// (RecordPageView, RecordInteraction, UpdateHeatmap, the background
// refresh tick) serialize through one mutex, which is what makes the
// core invariants hold: at most one PageView is ever open, and the
// interaction history keeps strict arrival order.
//
// State never leaks. Report returns a deep-copied Snapshot with
// time-derived fields (EndTime, TotalDurationMs) filled in for the
// caller; the live session is untouched by reads.
//
// Pointer movement is the one firehose in the input: movement samples
// must pass an interval sampler before they count, and rejection is a
// silent no-op by contract, not an error. Everything else is recorded
// unconditionally; an interaction arriving before any page context is
// filed against page 1 rather than dropped.
//
// The Registry hosts many live trackers keyed by session ID, shares one
// movement sampler across them, and closes them all concurrently at
// shutdown. Handlers hold a Registry reference; there is no package
// global.
//
// # Usage Example
//
//	reg := tracker.NewRegistry(ctx, tracker.DefaultRegistryConfig(), gw, logger, metrics)
//
//	t, _ := reg.Open("report.pdf", 12)
//	t.RecordPageView(1)
//	t.RecordInteraction(session.InteractionScroll, session.ScrollDetails{Direction: "down"})
//
//	snap, err := reg.Close(ctx, t.ID())
//
// # Related Packages
//
//   - pkg/session: the data model trackers aggregate
//   - pkg/ringbuf: the bounded interaction history
//   - pkg/ratelimit: the movement sampler
//   - pkg/gateway: where snapshots go
package tracker
