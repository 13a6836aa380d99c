// Package config provides configuration management for vigil components.
// It supports loading configuration from YAML files, JSON files, and environment variables
// with automatic validation and default value application.
//
// Example usage:
//
//	cfg, err := config.Load("vigil.yaml", "VIGIL")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Or panic on error:
//	cfg := config.MustLoad("vigil.yaml", "VIGIL")
package config

import (
	"time"
)

// Config represents the complete configuration for a vigil-based service.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Store    StoreConfig    `mapstructure:"store"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Runner   RunnerConfig   `mapstructure:"runner"`
}

// ServiceConfig contains general service information.
type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"` // development, staging, production
}

// ServerConfig contains the HTTP server configuration used for health and metrics endpoints.
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// LogConfig contains structured logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// CacheConfig contains in-process cache store configuration.
type CacheConfig struct {
	// DefaultTTL applies when GetOrCreate is called without a positive TTL.
	// Default: 30 minutes.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// EntityTTL is the default TTL for repository entity caches.
	// Default: 5 minutes.
	EntityTTL time.Duration `mapstructure:"entity_ttl"`

	// Shards is the number of independently locked key shards.
	// Default: 32.
	Shards int `mapstructure:"shards"`

	// SweepInterval enables a background sweeper when positive (0 = lazy expiry only).
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// SingleFlight collapses concurrent loads of the same missing key.
	SingleFlight bool `mapstructure:"single_flight"`
}

// StoreConfig contains persistence backend configuration.
type StoreConfig struct {
	// Driver selects the storage engine: "memory", "bolt", or "postgres".
	// Default: "memory".
	Driver string `mapstructure:"driver"`

	// Path is the bbolt database file when Driver is "bolt".
	Path string `mapstructure:"path"`

	// Timeout bounds how long opening a bbolt file waits for its file lock.
	// Default: 1 second.
	Timeout time.Duration `mapstructure:"timeout"`

	// Postgres holds the connection settings when Driver is "postgres".
	Postgres DatabaseConfig `mapstructure:"postgres"`
}

// DatabaseConfig contains PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"` // disable, require, verify-ca, verify-full
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// ExecutorConfig contains the default call shapes used by background services
// when they run operations through the executor.
type ExecutorConfig struct {
	// RetryCount is the number of retries after the first attempt.
	// Default: 3.
	RetryCount int `mapstructure:"retry_count"`

	// BaseDelay is the first backoff wait; attempt n waits BaseDelay * 2^n.
	// Default: 500 milliseconds.
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// Timeout is the default time budget for ExecuteWithTimeout callers.
	// Default: 30 seconds.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollerConfig contains sensor poller configuration.
type PollerConfig struct {
	// Interval is the sleep between poll cycles.
	// Default: 10 seconds.
	Interval time.Duration `mapstructure:"interval"`

	// FetchTimeout bounds each fetch (0 = no timeout).
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// Source selects where sensors come from: "repository" or "gateway".
	// Default: "repository".
	Source string `mapstructure:"source"`

	// Gateway configures the REST client when Source is "gateway".
	Gateway HTTPClientConfig `mapstructure:"gateway"`

	// Breaker wraps the source in a circuit breaker when enabled.
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5.
	FailureThreshold uint32 `mapstructure:"failure_threshold"`

	// OpenTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	// Default: 1.
	HalfOpenRequests uint32 `mapstructure:"half_open_requests"`
}

// BackupConfig contains backup scheduler configuration.
type BackupConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// At is the daily trigger time in "HH:MM" (24-hour, local time).
	// Default: "02:00".
	At string `mapstructure:"at"`

	// Retention is how many backups to keep after each cycle.
	// Default: 7.
	Retention int `mapstructure:"retention"`

	// Dir is where backup files are written.
	// Default: "backups".
	Dir string `mapstructure:"dir"`

	// RestorePath is the file a restore writes to.
	RestorePath string `mapstructure:"restore_path"`

	// Lease restricts cycles to the process holding a Redis lease.
	Lease LeaseConfig `mapstructure:"lease"`
}

// LeaseConfig contains distributed lease configuration.
type LeaseConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Key is the Redis key holding the lease.
	// Default: "vigil:backup:lease".
	Key string `mapstructure:"key"`

	// TTL is how long a lease is held if never released.
	// Default: 10 minutes.
	TTL time.Duration `mapstructure:"ttl"`
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"` // Metric prefix
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`      // OTLP endpoint (e.g., "localhost:4317")
	SampleRate   float64       `mapstructure:"sample_rate"`   // 0.0 to 1.0
	ServiceName  string        `mapstructure:"service_name"`  // Override service name for traces
	Environment  string        `mapstructure:"environment"`   // Environment tag
	ExportMode   string        `mapstructure:"export_mode"`   // "grpc" or "http"
	Insecure     bool          `mapstructure:"insecure"`      // Use insecure connection
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // Batch export timeout
}

// RunnerConfig contains background service orchestration configuration.
type RunnerConfig struct {
	// RestartPolicy is the default restart policy for services: "never", "always", or "on-failure".
	// Default: "on-failure".
	RestartPolicy string `mapstructure:"restart_policy"`

	// MaxRetries is the maximum number of restart attempts (0 = unlimited).
	// Default: 5.
	MaxRetries int `mapstructure:"max_retries"`

	// InitialBackoff is the initial delay before first restart.
	// Default: 1 second.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff is the maximum delay between restarts.
	// Default: 60 seconds.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// HealthInterval is how often unhealthy services are checked for restart.
	// Default: 15 seconds.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// HTTPClientConfig contains HTTP/REST client configuration.
type HTTPClientConfig struct {
	// BaseURL is the base URL for all requests (e.g., "https://gateway.local").
	BaseURL string `mapstructure:"base_url"`

	// Timeout is the maximum duration for a single request.
	// Default: 10 seconds.
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryCount is the number of transport-level retries.
	// Default: 0 (the executor owns retries).
	RetryCount int `mapstructure:"retry_count"`

	// RetryWaitTime is the initial wait time between retries.
	// Default: 1 second.
	RetryWaitTime time.Duration `mapstructure:"retry_wait_time"`

	// RetryMaxWaitTime is the maximum wait time between retries.
	// Default: 10 seconds.
	RetryMaxWaitTime time.Duration `mapstructure:"retry_max_wait_time"`

	// RateLimitPerSecond is the maximum requests per second (0 = unlimited).
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`

	// RateLimitBurst is the maximum burst size for rate limiting.
	// Default: 1.
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
}
