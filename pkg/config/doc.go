// Package config provides application configuration management from
// environment variables with an optional YAML file overlay.
//
// # Overview
//
// This package loads and validates configuration from FOLIOTRACE_*
// environment variables with sensible defaults for all settings. When a
// config file is given, its keys override the environment, and a Watcher
// can reload it on change so the dynamic knobs (movement sampling,
// save debounce, retention limits) follow the file without a restart.
//
// # Configuration Structure
//
// Server settings:
//
//	FOLIOTRACE_HOST="0.0.0.0"
//	FOLIOTRACE_PORT="8080"
//	FOLIOTRACE_HEALTH_PORT="9090"
//	FOLIOTRACE_READ_TIMEOUT="15s"
//	FOLIOTRACE_WRITE_TIMEOUT="15s"
//	FOLIOTRACE_MAX_BODY_BYTES="1048576"
//	FOLIOTRACE_ALLOWED_ORIGINS="*"
//	FOLIOTRACE_RATE_LIMIT_ENABLED="true"
//
// Storage settings:
//
//	FOLIOTRACE_STORAGE_TYPE="sqlite"  # memory, filesystem, sqlite, postgres, redis, s3
//	FOLIOTRACE_STORAGE_ROOT="/var/foliotrace/sessions"
//	FOLIOTRACE_SQLITE_PATH="foliotrace.db"
//	FOLIOTRACE_POSTGRES_URL="postgres://localhost/foliotrace"
//	FOLIOTRACE_REDIS_URL="localhost:6379"
//	FOLIOTRACE_S3_BUCKET="foliotrace-sessions"
//	FOLIOTRACE_CACHE_ENABLED="true"
//
// Collector settings:
//
//	FOLIOTRACE_BUFFER_CAPACITY="1000"
//	FOLIOTRACE_MOVEMENT_INTERVAL="100ms"
//	FOLIOTRACE_SNAPSHOT_INTERVAL="1s"
//	FOLIOTRACE_SAVE_DEBOUNCE="400ms"
//
// Retention settings:
//
//	FOLIOTRACE_RETENTION_MAX_AGE="168h"
//	FOLIOTRACE_RETENTION_MAX_SESSIONS="500"
//	FOLIOTRACE_RETENTION_SWEEP_INTERVAL="60s"
//
// Observability settings:
//
//	FOLIOTRACE_LOG_LEVEL="info"  # debug, info, warn, error
//	FOLIOTRACE_METRICS_ENABLED="true"
//	FOLIOTRACE_OTEL_ENABLED="true"
//	FOLIOTRACE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration with a file overlay and watch it for changes:
//
//	cfg, err := config.LoadConfig("/etc/foliotrace/config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	watcher, err := config.NewWatcher("/etc/foliotrace/config.yaml", logger, func(next *config.Config) {
//		sampler.SetInterval(next.Collector.MovementInterval)
//		gw.SetDebounce(next.Collector.SaveDebounce)
//		janitor.SetRetention(next.Retention.MaxAge, next.Retention.MaxSessions)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer watcher.Close()
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/tracker: Uses collector configuration
//   - pkg/gateway: Uses collector and retention configuration
//   - pkg/observability: Uses observability configuration
package config
