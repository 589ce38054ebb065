package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/foliotrace/foliotrace/pkg/session"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	last_activity TIMESTAMP NOT NULL,
	payload       BLOB NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions (last_activity);
`

// SQLiteStore persists snapshots in a single-file SQLite database. Suited to
// single-node deployments that want durability without an external service.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at cfg.SQLitePath.
func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = DefaultConfig().SQLitePath
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts the snapshot row keyed by session ID.
func (s *SQLiteStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if err := validateID(snap.ID); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO sessions (id, file_name, started_at, last_activity, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			file_name     = excluded.file_name,
			started_at    = excluded.started_at,
			last_activity = excluded.last_activity,
			payload       = excluded.payload,
			updated_at    = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.FileName, snap.StartTime, snap.LastActivity(), payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Get returns the stored snapshot, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM sessions WHERE id = ?", id).Scan(&payload)
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
func (s *SQLiteStore) List(ctx context.Context) ([]SessionInfo, error) {
	query := `
		SELECT id, file_name, started_at, last_activity, length(payload)
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
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Name implements Store.
func (s *SQLiteStore) Name() string { return TypeSQLite }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for health checks and pool metrics.
func (s *SQLiteStore) DB() *sql.DB { return s.db }
