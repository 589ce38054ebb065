// Package report renders session snapshots into export payloads.
//
// # Overview
//
// Four formats are supported. JSON is the lossless one: the complete
// snapshot, nothing truncated, round-trippable back into a Snapshot.
// HTML is a self-contained document for humans: summary cards, a
// per-page table, an interaction timeline capped at the most recent
// fifty entries, per-page activity overlays, and derived insights.
// CSV and NDJSON export the interaction stream for spreadsheet and
// log-pipeline consumers.
//
// Rendering is pure. A Generator never mutates the snapshot it is
// given, and a fixed snapshot always produces identical bytes, so
// exports are safe to serve concurrently and to diff across runs.
// Every derived statistic tolerates empty input; sections with nothing
// to show render an explicit N/A placeholder instead of failing.
//
// # Usage Example
//
//	gen := report.NewGenerator(metrics)
//
//	data, err := gen.Export(snap, report.FormatHTML)
//	if err != nil {
//		return err
//	}
//	w.Header().Set("Content-Type", report.ContentType(report.FormatHTML))
//	w.Write(data)
//
// # Related Packages
//
//   - pkg/tracker: produces the snapshots rendered here
//   - pkg/session: the snapshot model and its JSON encoding
//   - pkg/api: serves exports over HTTP
package report
