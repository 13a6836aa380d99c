package config

import (
	"fmt"
	"time"
)

// Validate validates the configuration and returns an error if any required fields are missing
// or have invalid values.
func Validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory":
	case "bolt":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required when store.driver is bolt")
		}
	case "postgres":
		pg := cfg.Store.Postgres
		if pg.Host == "" {
			return fmt.Errorf("store.postgres.host is required when store.driver is postgres")
		}
		if pg.User == "" {
			return fmt.Errorf("store.postgres.user is required when store.driver is postgres")
		}
		if pg.Database == "" {
			return fmt.Errorf("store.postgres.database is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver must be memory, bolt or postgres, got %q", cfg.Store.Driver)
	}

	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}

	if cfg.Executor.RetryCount < 0 {
		return fmt.Errorf("executor.retry_count must not be negative")
	}

	if cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	switch cfg.Poller.Source {
	case "repository":
	case "gateway":
		if cfg.Poller.Gateway.BaseURL == "" {
			return fmt.Errorf("poller.gateway.base_url is required when poller.source is gateway")
		}
	default:
		return fmt.Errorf("poller.source must be repository or gateway, got %q", cfg.Poller.Source)
	}

	if cfg.Backup.Enabled {
		if _, _, err := ParseTimeOfDay(cfg.Backup.At); err != nil {
			return fmt.Errorf("backup.at: %w", err)
		}
		if cfg.Backup.Retention < 1 {
			return fmt.Errorf("backup.retention must be at least 1")
		}
		if cfg.Store.Driver != "bolt" {
			return fmt.Errorf("backup requires store.driver bolt")
		}
		if cfg.Backup.Lease.Enabled && cfg.Redis.Host == "" {
			return fmt.Errorf("redis.host is required when backup.lease is enabled")
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

// ParseTimeOfDay parses a "HH:MM" 24-hour time of day.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// applyDefaults applies default values to the configuration where values are not set.
func applyDefaults(cfg *Config) {
	// Service defaults
	if cfg.Service.Name == "" {
		cfg.Service.Name = "vigil"
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "development"
	}

	// Server defaults
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}

	// Log defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// Cache defaults
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 30 * time.Minute
	}
	if cfg.Cache.EntityTTL == 0 {
		cfg.Cache.EntityTTL = 5 * time.Minute
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = 32
	}

	// Store defaults
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = time.Second
	}
	applyDatabaseDefaults(&cfg.Store.Postgres)

	// Executor defaults
	if cfg.Executor.RetryCount == 0 {
		cfg.Executor.RetryCount = 3
	}
	if cfg.Executor.BaseDelay == 0 {
		cfg.Executor.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = 30 * time.Second
	}

	// Poller defaults
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 10 * time.Second
	}
	if cfg.Poller.Source == "" {
		cfg.Poller.Source = "repository"
	}
	if cfg.Poller.Gateway.Timeout == 0 {
		cfg.Poller.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Poller.Gateway.RetryWaitTime == 0 {
		cfg.Poller.Gateway.RetryWaitTime = time.Second
	}
	if cfg.Poller.Gateway.RetryMaxWaitTime == 0 {
		cfg.Poller.Gateway.RetryMaxWaitTime = 10 * time.Second
	}
	if cfg.Poller.Gateway.RateLimitBurst == 0 {
		cfg.Poller.Gateway.RateLimitBurst = 1
	}
	if cfg.Poller.Breaker.FailureThreshold == 0 {
		cfg.Poller.Breaker.FailureThreshold = 5
	}
	if cfg.Poller.Breaker.OpenTimeout == 0 {
		cfg.Poller.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Poller.Breaker.HalfOpenRequests == 0 {
		cfg.Poller.Breaker.HalfOpenRequests = 1
	}

	// Backup defaults
	if cfg.Backup.At == "" {
		cfg.Backup.At = "02:00"
	}
	if cfg.Backup.Retention == 0 {
		cfg.Backup.Retention = 7
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "backups"
	}
	if cfg.Backup.Lease.Key == "" {
		cfg.Backup.Lease.Key = "vigil:backup:lease"
	}
	if cfg.Backup.Lease.TTL == 0 {
		cfg.Backup.Lease.TTL = 10 * time.Minute
	}

	// Redis defaults
	if cfg.Redis.Port == 0 && cfg.Redis.Host != "" {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = 3
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = cfg.Service.Name
	}

	// Tracing defaults
	if cfg.Tracing.SampleRate == 0 && cfg.Tracing.Enabled {
		cfg.Tracing.SampleRate = 0.1 // 10% sampling by default
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Service.Name
	}
	if cfg.Tracing.Environment == "" {
		cfg.Tracing.Environment = cfg.Service.Env
	}
	if cfg.Tracing.ExportMode == "" {
		cfg.Tracing.ExportMode = "grpc"
	}
	if cfg.Tracing.BatchTimeout == 0 {
		cfg.Tracing.BatchTimeout = 5 * time.Second
	}

	// Runner defaults
	if cfg.Runner.RestartPolicy == "" {
		cfg.Runner.RestartPolicy = "on-failure"
	}
	if cfg.Runner.MaxRetries == 0 {
		cfg.Runner.MaxRetries = 5
	}
	if cfg.Runner.InitialBackoff == 0 {
		cfg.Runner.InitialBackoff = time.Second
	}
	if cfg.Runner.MaxBackoff == 0 {
		cfg.Runner.MaxBackoff = 60 * time.Second
	}
	if cfg.Runner.HealthInterval == 0 {
		cfg.Runner.HealthInterval = 15 * time.Second
	}
}

func applyDatabaseDefaults(db *DatabaseConfig) {
	if db.Port == 0 && db.Host != "" {
		db.Port = 5432
	}
	if db.MaxConns == 0 {
		db.MaxConns = 10
	}
	if db.MinConns == 0 {
		db.MinConns = 1
	}
	if db.MaxConnLifetime == 0 {
		db.MaxConnLifetime = time.Hour
	}
	if db.MaxConnIdleTime == 0 {
		db.MaxConnIdleTime = 10 * time.Minute
	}
	if db.ConnectTimeout == 0 {
		db.ConnectTimeout = 30 * time.Second
	}
	if db.QueryTimeout == 0 {
		db.QueryTimeout = 30 * time.Second
	}
	if db.SSLMode == "" {
		db.SSLMode = "prefer"
	}
}
