// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "snapshot save", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return gateway.Flush(ctx, snap)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "session close", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return registry.Close(ctx, sessionID)
//	})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Debounced saves, bulk session teardown, retention sweeps
//
// # Related Packages
//
//   - pkg/tracker: Uses WorkerPool for registry-wide teardown
//   - pkg/gateway: Uses SafeGo for fire-and-forget saves
package async
