// Package gateway moves session snapshots into durable storage.
//
// # Overview
//
// The Gateway stands between trackers and the storage backend. Trackers
// save eagerly (a 1 Hz refresh loop plus every interaction burst); the
// gateway debounces those calls per session and writes only the latest
// snapshot once the burst goes quiet, so storage sees one write per
// quiet window instead of one per call.
//
// Two write paths with different failure contracts:
//
//   - Save: fire-and-forget. The write happens on a supervised
//     background goroutine after the debounce window; failures are
//     logged and swallowed. Losing a periodic snapshot is acceptable,
//     interrupting tracking is not.
//   - Flush: synchronous. Used at lifecycle edges (session close,
//     shutdown) where the caller wants the write completed before
//     proceeding and chooses what to do with a failure.
//
// The Janitor bounds storage growth: a cron-scheduled sweep deletes
// sessions whose last activity is past MaxAge and the oldest sessions
// beyond MaxSessions. RunOnce exposes the same sweep to the standalone
// janitor binary.
//
// # Usage Example
//
//	gw := gateway.New(store, gateway.DefaultConfig(), logger, metrics)
//	gw.Save(id, tracker.Report())            // debounced, advisory
//	if err := gw.Flush(ctx, id, final); err != nil {
//	    logger.WithError(err).Warn("final flush failed")
//	}
//
//	jan := gateway.NewJanitor(store, gateway.DefaultJanitorConfig(), logger, metrics)
//	jan.Start()
//	defer jan.Stop()
//
// # Related Packages
//
//   - pkg/tracker: produces the snapshots the gateway persists
//   - pkg/storage: the backends the gateway writes to
//   - pkg/ratelimit: supplies the Debouncer
package gateway
