// Package storage provides pluggable persistence backends for session snapshots.
//
// # Overview
//
// This package defines the persistence abstraction for foliotrace, enabling
// multiple backend implementations (memory, filesystem, SQLite, PostgreSQL,
// Redis, S3) behind a single Store interface. A snapshot is an opaque value
// keyed by session ID: backends replace the whole document on every save and
// never merge, so the newest save always wins.
//
// # Store Interface
//
// All operations accept context.Context for cancellation and timeouts:
//
//	type Store interface {
//		Save(ctx context.Context, snap *session.Snapshot) error
//		Get(ctx context.Context, id string) (*session.Snapshot, error)
//		List(ctx context.Context) ([]SessionInfo, error)
//		Delete(ctx context.Context, id string) error
//		Ping(ctx context.Context) error
//		Name() string
//		Close() error
//	}
//
// Get and Delete return ErrNotFound for absent sessions; callers match it
// with errors.Is. List returns lightweight SessionInfo entries ordered by
// most recent activity, which is what retention pruning keys on.
//
// # Backend Implementations
//
// MemoryStore: mutex-guarded map, deep-copies on the way in and out. The
// default, and the natural choice when embedding the collector in-process.
//
//	store := storage.NewMemoryStore()
//
// FilesystemStore: one JSON file per session under a root directory. Writes
// go through a temp file and rename, so crashes never leave partial files.
//
//	store, err := storage.NewFilesystemStore("/var/lib/foliotrace/sessions")
//
// SQLiteStore / PostgresStore: a single sessions table with the snapshot as
// a JSON payload column, upserted by primary key.
//
// RedisStore: one key per session under a prefix, optional TTL so Redis
// expires idle sessions on its own.
//
// S3Store: one object per session under a key prefix. Works against AWS S3
// or MinIO (path-style addressing plus automatic bucket creation).
//
// # Factory
//
// NewStore selects a backend from Config.Type and layers on operation
// metrics and, when enabled, a read cache:
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "postgres"
//	cfg.PostgresURL = "postgres://localhost/foliotrace?sslmode=disable"
//
//	store, err := storage.NewStore(ctx, cfg, logger, metrics)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// # Decorators
//
// WithCache adds an expiring LRU in front of any Store for report-serving
// reads; saves and deletes invalidate the entry. WithMetrics records
// per-operation counters and latency histograms labeled by backend. The
// factory composes them as cache(metrics(backend)), so cache hits do not
// inflate backend operation counts.
//
// # Related Packages
//
//   - pkg/gateway: debounced saving and retention pruning on top of a Store
//   - pkg/session: the Snapshot type stored here
package storage
