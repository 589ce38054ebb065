// Package session defines the core data model for viewer session analytics.
//
// # Overview
//
// A Session is one continuous viewing episode of a document, from open to
// teardown. While a session is live the tracker package accumulates
// PageViews (time-on-page plus per-page interaction counters) and
// Interactions (individual timestamped user actions). A Snapshot is the
// immutable read projection of all of that state at a point in time; it is
// what gets persisted, exported, and reported on.
//
// Interaction details are a closed tagged union keyed by the interaction
// type: a navigate interaction carries NavigateDetails, a pointer sample
// carries PointerDetails, and so on. Unknown or absent details decode to
// nil and are tolerated by every consumer.
//
// # Related Packages
//
//   - pkg/tracker: mutates live session state
//   - pkg/storage: persists snapshots
//   - pkg/report: renders snapshots
package session
