package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foliotrace/foliotrace/pkg/gateway"
	"github.com/foliotrace/foliotrace/pkg/observability"
	"github.com/foliotrace/foliotrace/pkg/ratelimit"
	"github.com/foliotrace/foliotrace/pkg/ringbuf"
	"github.com/foliotrace/foliotrace/pkg/storage"
	"github.com/foliotrace/foliotrace/pkg/tracker"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Collector configuration (buffering, sampling, persistence cadence)
	Collector CollectorConfig `yaml:"collector"`

	// Retention configuration
	Retention RetentionConfig `yaml:"retention"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP collector server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort"`

	// Request body cap for ingest payloads
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`

	// CORS origins allowed to post viewer events ("*" allows any)
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// Per-client ingest rate limiting
	RateLimitEnabled  bool          `yaml:"rateLimitEnabled"`
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`
	RateLimitBurst    int           `yaml:"rateLimitBurst"`
}

// Addr returns the collector listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// HealthAddr returns the health and metrics listen address.
func (s ServerConfig) HealthAddr() string {
	return net.JoinHostPort(s.Host, s.HealthPort)
}

// CollectorConfig holds the per-session tracking knobs
type CollectorConfig struct {
	// BufferCapacity bounds each session's interaction history
	BufferCapacity int `yaml:"bufferCapacity"`

	// MovementInterval is the minimum spacing between admitted pointer
	// movement samples
	MovementInterval time.Duration `yaml:"movementInterval"`

	// SnapshotInterval is the live-duration refresh cadence
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// SaveDebounce is the quiet window before a snapshot write
	SaveDebounce time.Duration `yaml:"saveDebounce"`

	// SaveTimeout bounds each background storage write
	SaveTimeout time.Duration `yaml:"saveTimeout"`

	// CloseTimeout bounds each final flush when closing sessions
	CloseTimeout time.Duration `yaml:"closeTimeout"`
}

// RetentionConfig holds the stored-session pruning limits
type RetentionConfig struct {
	MaxAge        time.Duration `yaml:"maxAge"`
	MaxSessions   int           `yaml:"maxSessions"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"logLevel"`

	// Metrics
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otelEnabled"`
	OTelEndpoint       string  `yaml:"otelEndpoint"`
	OTelServiceName    string  `yaml:"otelServiceName"`
	OTelServiceVersion string  `yaml:"otelServiceVersion"`
	OTelInsecure       bool    `yaml:"otelInsecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otelSampleRatio"`
}

// LoadConfig loads configuration from environment variables, then overlays
// the YAML file at path when one is given. File values win over environment
// values; absent file keys keep them.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Collector:     loadCollectorConfig(),
		Retention:     loadRetentionConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays the YAML document at path onto c. Only keys present
// in the document are touched.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	limiter := ratelimit.DefaultConfig()
	return ServerConfig{
		Host:            getEnv("FOLIOTRACE_HOST", "0.0.0.0"),
		Port:            getEnv("FOLIOTRACE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FOLIOTRACE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FOLIOTRACE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FOLIOTRACE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FOLIOTRACE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FOLIOTRACE_HEALTH_PORT", "9090"),
		MaxBodyBytes:    getEnvInt64("FOLIOTRACE_MAX_BODY_BYTES", 1<<20),
		AllowedOrigins:  splitList(getEnv("FOLIOTRACE_ALLOWED_ORIGINS", "*")),

		RateLimitEnabled:  getEnvBool("FOLIOTRACE_RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvInt("FOLIOTRACE_RATE_LIMIT_REQUESTS", limiter.RequestsPerWindow),
		RateLimitWindow:   getEnvDuration("FOLIOTRACE_RATE_LIMIT_WINDOW", limiter.WindowDuration),
		RateLimitBurst:    getEnvInt("FOLIOTRACE_RATE_LIMIT_BURST", limiter.BurstSize),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Backend selection
	if storageType := getEnv("FOLIOTRACE_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// Filesystem config
	if rootDir := getEnv("FOLIOTRACE_STORAGE_ROOT", ""); rootDir != "" {
		cfg.RootDir = rootDir
	}

	// SQLite config
	if sqlitePath := getEnv("FOLIOTRACE_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	// PostgreSQL config
	if pgURL := getEnv("FOLIOTRACE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("FOLIOTRACE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("FOLIOTRACE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("FOLIOTRACE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("FOLIOTRACE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("FOLIOTRACE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("FOLIOTRACE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("FOLIOTRACE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("FOLIOTRACE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if redisKeyPrefix := getEnv("FOLIOTRACE_REDIS_KEY_PREFIX", ""); redisKeyPrefix != "" {
		cfg.RedisKeyPrefix = redisKeyPrefix
	}
	if redisTTL := getEnvDuration("FOLIOTRACE_REDIS_TTL", 0); redisTTL > 0 {
		cfg.RedisTTL = redisTTL
	}

	// S3 config
	if s3Endpoint := getEnv("FOLIOTRACE_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("FOLIOTRACE_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("FOLIOTRACE_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("FOLIOTRACE_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("FOLIOTRACE_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("FOLIOTRACE_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}
	if s3KeyPrefix := getEnv("FOLIOTRACE_S3_KEY_PREFIX", ""); s3KeyPrefix != "" {
		cfg.S3KeyPrefix = s3KeyPrefix
	}

	// Cache config
	if cacheEnabled := getEnv("FOLIOTRACE_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheSize := getEnvInt("FOLIOTRACE_CACHE_SIZE", 0); cacheSize > 0 {
		cfg.CacheSize = cacheSize
	}
	if cacheTTL := getEnvDuration("FOLIOTRACE_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}

	return cfg
}

// loadCollectorConfig loads collector configuration from environment
func loadCollectorConfig() CollectorConfig {
	registry := tracker.DefaultRegistryConfig()
	gw := gateway.DefaultConfig()
	return CollectorConfig{
		BufferCapacity:   getEnvInt("FOLIOTRACE_BUFFER_CAPACITY", ringbuf.DefaultCapacity),
		MovementInterval: getEnvDuration("FOLIOTRACE_MOVEMENT_INTERVAL", registry.MovementInterval),
		SnapshotInterval: getEnvDuration("FOLIOTRACE_SNAPSHOT_INTERVAL", registry.Tracker.SnapshotInterval),
		SaveDebounce:     getEnvDuration("FOLIOTRACE_SAVE_DEBOUNCE", gw.Debounce),
		SaveTimeout:      getEnvDuration("FOLIOTRACE_SAVE_TIMEOUT", gw.SaveTimeout),
		CloseTimeout:     getEnvDuration("FOLIOTRACE_CLOSE_TIMEOUT", registry.CloseTimeout),
	}
}

// loadRetentionConfig loads retention configuration from environment
func loadRetentionConfig() RetentionConfig {
	janitor := gateway.DefaultJanitorConfig()
	return RetentionConfig{
		MaxAge:        getEnvDuration("FOLIOTRACE_RETENTION_MAX_AGE", janitor.MaxAge),
		MaxSessions:   getEnvInt("FOLIOTRACE_RETENTION_MAX_SESSIONS", janitor.MaxSessions),
		SweepInterval: getEnvDuration("FOLIOTRACE_RETENTION_SWEEP_INTERVAL", janitor.Interval),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("FOLIOTRACE_LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("FOLIOTRACE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FOLIOTRACE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FOLIOTRACE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FOLIOTRACE_OTEL_SERVICE_NAME", "foliotrace"),
		OTelServiceVersion: getEnv("FOLIOTRACE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FOLIOTRACE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FOLIOTRACE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitRequests <= 0 {
			return fmt.Errorf("rate limit requests must be positive when rate limiting is enabled")
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive when rate limiting is enabled")
		}
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case storage.TypeMemory:
	case storage.TypeFilesystem:
		if c.Storage.RootDir == "" {
			return fmt.Errorf("root directory is required for filesystem storage")
		}
	case storage.TypeSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("database path is required for sqlite storage")
		}
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case storage.TypeRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	case storage.TypeS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, sqlite, postgres, redis, or s3)", c.Storage.Type)
	}

	// Validate collector config
	if c.Collector.BufferCapacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive")
	}
	if c.Collector.MovementInterval < 0 {
		return fmt.Errorf("movement interval must not be negative")
	}
	if c.Collector.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}
	if c.Collector.SaveTimeout <= 0 {
		return fmt.Errorf("save timeout must be positive")
	}
	if c.Collector.CloseTimeout <= 0 {
		return fmt.Errorf("close timeout must be positive")
	}

	// Validate retention config
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention max age must not be negative")
	}
	if c.Retention.MaxSessions < 0 {
		return fmt.Errorf("retention max sessions must not be negative")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention sweep interval must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Level returns the parsed logging level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(strings.ToLower(o.LogLevel))
}

// OTel returns the OpenTelemetry settings in provider form.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// RegistryConfig returns the collector settings in tracker form.
func (c *Config) RegistryConfig() tracker.RegistryConfig {
	return tracker.RegistryConfig{
		Tracker: tracker.Config{
			BufferCapacity:   c.Collector.BufferCapacity,
			SnapshotInterval: c.Collector.SnapshotInterval,
		},
		MovementInterval: c.Collector.MovementInterval,
		CloseTimeout:     c.Collector.CloseTimeout,
	}
}

// GatewayConfig returns the persistence gateway settings.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Debounce:    c.Collector.SaveDebounce,
		SaveTimeout: c.Collector.SaveTimeout,
	}
}

// JanitorConfig returns the retention sweeper settings.
func (c *Config) JanitorConfig() gateway.JanitorConfig {
	return gateway.JanitorConfig{
		MaxAge:      c.Retention.MaxAge,
		MaxSessions: c.Retention.MaxSessions,
		Interval:    c.Retention.SweepInterval,
	}
}

// LimiterConfig returns the ingest rate limiter settings, nil when rate
// limiting is disabled.
func (c *Config) LimiterConfig() *ratelimit.Config {
	if !c.Server.RateLimitEnabled {
		return nil
	}
	return &ratelimit.Config{
		RequestsPerWindow: c.Server.RateLimitRequests,
		WindowDuration:    c.Server.RateLimitWindow,
		BurstSize:         c.Server.RateLimitBurst,
	}
}

// splitList splits a comma-separated environment value, trimming blanks.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
