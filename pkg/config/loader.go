package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the vigil configuration from an optional YAML file and the
// environment, fills unset fields through applyDefaults and validates the
// result. Environment variables are named after the mapstructure path with
// the given prefix, e.g. VIGIL_POLLER_INTERVAL or VIGIL_BACKUP_LEASE_TTL,
// and take precedence over the file. With an empty configPath only the
// environment is read.
func Load(configPath, envPrefix string) (*Config, error) {
	v := viper.New()

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper has seen, so nested sections
	// must be bound up front for env-only loading.
	if err := bindEnv(v, reflect.TypeOf(Config{}), ""); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnv registers every leaf key of t, such as store.postgres.host.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		// time.Duration is an int64, so only plain structs are sections.
		if f.Type.Kind() == reflect.Struct {
			if err := bindEnv(v, f.Type, key); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// MustLoad is Load for main packages; it panics on error.
func MustLoad(configPath, envPrefix string) *Config {
	cfg, err := Load(configPath, envPrefix)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from the environment alone.
func LoadFromEnv(envPrefix string) (*Config, error) {
	return Load("", envPrefix)
}

// MustLoadFromEnv is LoadFromEnv that panics on error.
func MustLoadFromEnv(envPrefix string) *Config {
	return MustLoad("", envPrefix)
}
