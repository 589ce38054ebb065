package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/session"
)

// ErrNotFound is returned when no snapshot exists for the requested session ID.
var ErrNotFound = errors.New("session not found")

// Backend type names accepted by Config.Type.
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
	TypeRedis      = "redis"
	TypeS3         = "s3"
)

// SessionInfo is a listing entry for one stored snapshot.
type SessionInfo struct {
	ID           string    `json:"sessionId"`
	FileName     string    `json:"fileName"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
}

// Store persists session snapshots keyed by session ID.
//
// Implementations must be safe for concurrent use: the gateway saves from a
// debounce timer while report handlers read.
type Store interface {
	// Save writes the snapshot, replacing any earlier snapshot for the same session.
	Save(ctx context.Context, snap *session.Snapshot) error

	// Get returns the stored snapshot, or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Snapshot, error)

	// List enumerates stored sessions, most recent activity first.
	List(ctx context.Context) ([]SessionInfo, error)

	// Delete removes a stored snapshot. Deleting an absent session returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Ping reports backend reachability.
	Ping(ctx context.Context) error

	// Name identifies the backend ("memory", "filesystem", ...).
	Name() string

	// Close releases backend resources. The store is unusable afterwards.
	Close() error
}

// Config selects and parameterizes a storage backend.
type Config struct {
	Type string `yaml:"type"` // "memory", "filesystem", "sqlite", "postgres", "redis", "s3"

	// Filesystem config
	RootDir string `yaml:"rootDir"`

	// SQLite config
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgresUrl"`
	PostgresMaxConns int           `yaml:"postgresMaxConns"`
	PostgresMinConns int           `yaml:"postgresMinConns"`
	PostgresTimeout  time.Duration `yaml:"postgresTimeout"`

	// Redis config
	RedisURL        string        `yaml:"redisUrl"`
	RedisPassword   string        `yaml:"redisPassword"`
	RedisDB         int           `yaml:"redisDb"`
	RedisMaxRetries int           `yaml:"redisMaxRetries"`
	RedisPoolSize   int           `yaml:"redisPoolSize"`
	RedisKeyPrefix  string        `yaml:"redisKeyPrefix"`
	RedisTTL        time.Duration `yaml:"redisTtl"` // 0 keeps snapshots until deleted

	// S3 config
	S3Endpoint     string `yaml:"s3Endpoint"`
	S3Region       string `yaml:"s3Region"`
	S3Bucket       string `yaml:"s3Bucket"`
	S3AccessKey    string `yaml:"s3AccessKey"`
	S3SecretKey    string `yaml:"s3SecretKey"`
	S3UsePathStyle bool   `yaml:"s3UsePathStyle"`
	S3KeyPrefix    string `yaml:"s3KeyPrefix"`

	// Read cache decorator
	CacheEnabled bool          `yaml:"cacheEnabled"`
	CacheSize    int           `yaml:"cacheSize"`
	CacheTTL     time.Duration `yaml:"cacheTtl"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		RootDir:          "/tmp/foliotrace",
		SQLitePath:       "foliotrace.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		RedisKeyPrefix:   "foliotrace:session:",
		S3Region:         "us-east-1",
		S3KeyPrefix:      "sessions/",
		CacheEnabled:     true,
		CacheSize:        256,
		CacheTTL:         5 * time.Minute,
	}
}

// NewStore builds the backend named by cfg.Type, wrapping it with operation
// metrics and, when enabled, the read cache.
func NewStore(ctx context.Context, cfg Config, logger *observability.Logger, metrics *observability.Metrics) (Store, error) {
	var (
		base Store
		err  error
	)

	switch cfg.Type {
	case "", TypeMemory:
		base = NewMemoryStore()
	case TypeFilesystem:
		base, err = NewFilesystemStore(cfg.RootDir)
	case TypeSQLite:
		base, err = NewSQLiteStore(ctx, cfg)
	case TypePostgres:
		base, err = NewPostgresStore(ctx, cfg)
	case TypeRedis:
		base, err = NewRedisStore(ctx, cfg)
	case TypeS3:
		base, err = NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}

	store := WithMetrics(base, metrics)
	if cfg.CacheEnabled {
		store = WithCache(store, cfg.CacheSize, cfg.CacheTTL, metrics)
	}

	if logger != nil {
		logger.WithField("backend", base.Name()).
			WithField("cache_enabled", cfg.CacheEnabled).
			Info("Storage backend ready")
	}

	return store, nil
}

// validateID rejects session IDs that cannot be used as storage keys. IDs are
// normally UUIDs, but the store is a public surface and filesystem keys become
// path components.
func validateID(id string) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// infoFor builds a listing entry from a stored snapshot.
func infoFor(snap *session.Snapshot, size int64) SessionInfo {
	return SessionInfo{
		ID:           snap.ID,
		FileName:     snap.FileName,
		StartTime:    snap.StartTime,
		LastActivity: snap.LastActivity(),
		SizeBytes:    size,
	}
}

// sortByActivity orders listing entries most recent activity first.
func sortByActivity(infos []SessionInfo) {
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActivity.After(infos[j].LastActivity)
	})
}
