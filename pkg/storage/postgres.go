package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/foliotrace/foliotrace/pkg/session"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	last_activity TIMESTAMPTZ NOT NULL,
	payload       JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions (last_activity);
`

// PostgresStore persists snapshots in a PostgreSQL sessions table, one JSONB
// row per session.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to cfg.PostgresURL, verifies the connection, and
// ensures the sessions table exists.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.PostgresTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PostgresTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save upserts the snapshot row keyed by session ID.
func (s *PostgresStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if err := validateID(snap.ID); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO sessions (id, file_name, started_at, last_activity, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			file_name     = EXCLUDED.file_name,
			started_at    = EXCLUDED.started_at,
			last_activity = EXCLUDED.last_activity,
			payload       = EXCLUDED.payload,
			updated_at    = now()
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.FileName, snap.StartTime, snap.LastActivity(), payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Get returns the stored snapshot, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM sessions WHERE id = $1", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List enumerates stored sessions, most recent activity first.
func (s *PostgresStore) List(ctx context.Context) ([]SessionInfo, error) {
	query := `
		SELECT id, file_name, started_at, last_activity, octet_length(payload::text)
		FROM sessions
		ORDER BY last_activity DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.FileName, &info.StartTime, &info.LastActivity, &info.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return infos, nil
}

// Delete removes the snapshot row, or returns ErrNotFound.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Name implements Store.
func (s *PostgresStore) Name() string { return TypePostgres }

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for health checks and pool metrics.
func (s *PostgresStore) DB() *sql.DB { return s.db }
