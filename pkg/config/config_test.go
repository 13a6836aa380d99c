package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad verifies configuration loading from YAML file
func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
service:
  name: plant-monitor
  version: 1.0.0

store:
  driver: bolt
  path: /var/lib/vigil/vigil.db

cache:
  default_ttl: 10m
  single_flight: true

poller:
  interval: 5s
  fetch_timeout: 2s

backup:
  enabled: true
  at: "03:30"
  retention: 3
  dir: /var/lib/vigil/backups

log:
  level: debug
  format: json

tracing:
  enabled: true
  endpoint: localhost:4317
  sample_rate: 0.5
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "plant-monitor" {
		t.Errorf("Service.Name = %v, want %v", cfg.Service.Name, "plant-monitor")
	}
	if cfg.Store.Driver != "bolt" {
		t.Errorf("Store.Driver = %v, want bolt", cfg.Store.Driver)
	}
	if cfg.Cache.DefaultTTL != 10*time.Minute {
		t.Errorf("Cache.DefaultTTL = %v, want 10m", cfg.Cache.DefaultTTL)
	}
	if !cfg.Cache.SingleFlight {
		t.Error("Cache.SingleFlight = false, want true")
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("Poller.Interval = %v, want 5s", cfg.Poller.Interval)
	}
	if cfg.Backup.At != "03:30" || cfg.Backup.Retention != 3 {
		t.Errorf("Backup = %+v, want at 03:30 retention 3", cfg.Backup)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want %v", cfg.Tracing.SampleRate, 0.5)
	}
}

// TestLoadFromEnv verifies loading configuration with no file applies defaults
func TestLoadFromEnv(t *testing.T) {
	cfg, err := LoadFromEnv("VIGIL")
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %v, want memory", cfg.Store.Driver)
	}
	if cfg.Poller.Interval != 10*time.Second {
		t.Errorf("Poller.Interval = %v, want 10s", cfg.Poller.Interval)
	}
}

// TestLoadFromEnvNestedKeys verifies nested sections resolve without a file
func TestLoadFromEnvNestedKeys(t *testing.T) {
	t.Setenv("VIGILENV_POLLER_INTERVAL", "4s")
	t.Setenv("VIGILENV_BACKUP_LEASE_TTL", "90s")
	t.Setenv("VIGILENV_STORE_POSTGRES_HOST", "db.internal")

	cfg, err := LoadFromEnv("VIGILENV")
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Poller.Interval != 4*time.Second {
		t.Errorf("Poller.Interval = %v, want 4s", cfg.Poller.Interval)
	}
	if cfg.Backup.Lease.TTL != 90*time.Second {
		t.Errorf("Backup.Lease.TTL = %v, want 90s", cfg.Backup.Lease.TTL)
	}
	if cfg.Store.Postgres.Host != "db.internal" {
		t.Errorf("Store.Postgres.Host = %q, want db.internal", cfg.Store.Postgres.Host)
	}
}

// TestMustLoad verifies MustLoad panics on error
func TestMustLoad(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLoad() should panic on invalid config")
		}
	}()

	MustLoad("/nonexistent/path/config.yaml", "")
}

// TestValidate verifies configuration validation
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "sqlite" },
			wantErr: "store.driver",
		},
		{
			name:    "bolt without path",
			mutate:  func(c *Config) { c.Store.Driver = "bolt" },
			wantErr: "store.path",
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.postgres.host",
		},
		{
			name:    "negative retry count",
			mutate:  func(c *Config) { c.Executor.RetryCount = -1 },
			wantErr: "executor.retry_count",
		},
		{
			name:    "gateway without base url",
			mutate:  func(c *Config) { c.Poller.Source = "gateway" },
			wantErr: "poller.gateway.base_url",
		},
		{
			name: "backup bad time",
			mutate: func(c *Config) {
				c.Store.Driver, c.Store.Path = "bolt", "vigil.db"
				c.Backup.Enabled = true
				c.Backup.At = "25:99"
			},
			wantErr: "backup.at",
		},
		{
			name: "backup needs bolt",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
			},
			wantErr: "store.driver bolt",
		},
		{
			name: "lease needs redis",
			mutate: func(c *Config) {
				c.Store.Driver, c.Store.Path = "bolt", "vigil.db"
				c.Backup.Enabled = true
				c.Backup.Lease.Enabled = true
			},
			wantErr: "redis.host",
		},
		{
			name: "tracing bad sample rate",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Endpoint = "localhost:4317"
				c.Tracing.SampleRate = 2
			},
			wantErr: "tracing.sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestApplyDefaults verifies default values are applied
func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Errorf("Cache.DefaultTTL = %v, want 30m", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.EntityTTL != 5*time.Minute {
		t.Errorf("Cache.EntityTTL = %v, want 5m", cfg.Cache.EntityTTL)
	}
	if cfg.Cache.Shards != 32 {
		t.Errorf("Cache.Shards = %v, want 32", cfg.Cache.Shards)
	}
	if cfg.Executor.RetryCount != 3 || cfg.Executor.BaseDelay != 500*time.Millisecond {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
	if cfg.Backup.At != "02:00" || cfg.Backup.Retention != 7 {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if cfg.Metrics.Namespace != "vigil" {
		t.Errorf("Metrics.Namespace = %v, want vigil", cfg.Metrics.Namespace)
	}
	if cfg.Tracing.ServiceName != "vigil" {
		t.Errorf("Tracing.ServiceName = %v, want vigil", cfg.Tracing.ServiceName)
	}
	if cfg.Runner.RestartPolicy != "on-failure" {
		t.Errorf("Runner.RestartPolicy = %v, want on-failure", cfg.Runner.RestartPolicy)
	}
}

// TestApplyDefaultsWithPostgres verifies Postgres defaults only set the port when a host is given
func TestApplyDefaultsWithPostgres(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Postgres.Host = "localhost"
	applyDefaults(cfg)

	if cfg.Store.Postgres.Port != 5432 {
		t.Errorf("Store.Postgres.Port = %v, want 5432", cfg.Store.Postgres.Port)
	}
	if cfg.Store.Postgres.SSLMode != "prefer" {
		t.Errorf("Store.Postgres.SSLMode = %v, want prefer", cfg.Store.Postgres.SSLMode)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("07:45")
	if err != nil || h != 7 || m != 45 {
		t.Errorf("ParseTimeOfDay(07:45) = %d, %d, %v", h, m, err)
	}
	if _, _, err := ParseTimeOfDay("7pm"); err == nil {
		t.Error("ParseTimeOfDay(7pm) should fail")
	}
}

// TestEnvVarOverride verifies environment variables override file config
func TestEnvVarOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
poller:
  interval: 10s
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("TEST_POLLER_INTERVAL", "3s")

	cfg, err := Load(configPath, "TEST")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Poller.Interval != 3*time.Second {
		t.Errorf("Poller.Interval = %v, want 3s (env var should override)", cfg.Poller.Interval)
	}
}
