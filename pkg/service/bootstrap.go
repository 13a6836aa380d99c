package service

import (
	"context"
	"fmt"

	"github.com/Combine-Capital/vigil/pkg/cache"
	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/health"
	"github.com/Combine-Capital/vigil/pkg/lock"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/Combine-Capital/vigil/pkg/store"
	"github.com/Combine-Capital/vigil/pkg/tracing"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Bootstrap holds the shared infrastructure of a vigil process.
type Bootstrap struct {
	Config         *config.Config
	Logger         *logging.Logger
	TracerProvider *sdktrace.TracerProvider

	// Engine is the persistence backend and Session stages mutations on it
	// for every repository in the process.
	Engine  store.Engine
	Session *store.Session
	Cache   *cache.Store

	// Redis is nil unless redis.host is configured.
	Redis *redis.Client

	Health *health.Health

	cleanup *CleanupHandler
}

// BootstrapOption configures NewBootstrap.
type BootstrapOption func(*bootstrapConfig)

type bootstrapConfig struct {
	skipMetrics bool
	skipTracing bool
	logger      *logging.Logger
	engine      store.Engine
}

// WithoutMetrics skips metrics initialization.
func WithoutMetrics() BootstrapOption {
	return func(c *bootstrapConfig) {
		c.skipMetrics = true
	}
}

// WithoutTracing skips tracing initialization.
func WithoutTracing() BootstrapOption {
	return func(c *bootstrapConfig) {
		c.skipTracing = true
	}
}

// WithBootstrapLogger uses l instead of building a logger from cfg.Log.
func WithBootstrapLogger(l *logging.Logger) BootstrapOption {
	return func(c *bootstrapConfig) {
		c.logger = l
	}
}

// WithEngine uses e instead of opening cfg.Store. Bootstrap does not close it.
func WithEngine(e store.Engine) BootstrapOption {
	return func(c *bootstrapConfig) {
		c.engine = e
	}
}

// NewBootstrap initializes logging, metrics, tracing, the store, the cache
// and Redis in that order. On failure everything already initialized is
// released.
func NewBootstrap(ctx context.Context, cfg *config.Config, opts ...BootstrapOption) (*Bootstrap, error) {
	bc := &bootstrapConfig{}
	for _, opt := range opts {
		opt(bc)
	}

	logger := bc.logger
	if logger == nil {
		logger = logging.New(cfg.Log)
	}
	logger = logger.WithServiceName(cfg.Service.Name)

	b := &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		cleanup: NewCleanupHandler(logger),
	}
	logger.Info().
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Msg("service starting")

	fail := func(err error) (*Bootstrap, error) {
		_ = b.Cleanup(context.WithoutCancel(ctx))
		return nil, err
	}

	if !bc.skipMetrics && cfg.Metrics.Enabled {
		if err := metrics.Init(cfg.Metrics); err != nil {
			return fail(fmt.Errorf("failed to initialize metrics: %w", err))
		}
		if err := metrics.InitStandardMetrics(cfg.Metrics.Namespace); err != nil {
			return fail(fmt.Errorf("failed to register standard metrics: %w", err))
		}
		logger.Info().Str("path", cfg.Metrics.Path).Msg("metrics initialized")
	}

	if !bc.skipTracing && cfg.Tracing.Enabled {
		serviceName := cfg.Service.Name
		if cfg.Tracing.ServiceName != "" {
			serviceName = cfg.Tracing.ServiceName
		}
		tp, shutdown, err := tracing.NewTracerProvider(ctx, cfg.Tracing, serviceName)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize tracing: %w", err))
		}
		b.TracerProvider = tp
		b.cleanup.Register("tracing", CleanupFunc(shutdown))
		logger.Info().
			Str("endpoint", cfg.Tracing.Endpoint).
			Float64("sample_rate", cfg.Tracing.SampleRate).
			Msg("tracing initialized")
	}

	b.Health = health.New(health.WithLogger(logger))

	if bc.engine != nil {
		b.Engine = bc.engine
	} else {
		engine, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return fail(fmt.Errorf("failed to open store: %w", err))
		}
		b.Engine = engine
		b.cleanup.Register("store", func(context.Context) error { return engine.Close() })
		logger.Info().Str("driver", cfg.Store.Driver).Msg("store opened")
	}
	b.Session = store.NewSession(b.Engine)
	b.Health.Register("store", health.Ping(b.Engine))

	b.Cache = cache.New(cfg.Cache, cache.WithLogger(logger))
	if cfg.Cache.SweepInterval > 0 {
		sweepCtx, stopSweeper := context.WithCancel(context.WithoutCancel(ctx))
		go b.Cache.RunSweeper(sweepCtx, cfg.Cache.SweepInterval)
		b.cleanup.Register("cache sweeper", func(context.Context) error {
			stopSweeper()
			return nil
		})
	}

	if cfg.Redis.Host != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		b.Redis = client
		b.cleanup.Register("redis", func(context.Context) error { return client.Close() })
		b.Health.Register("redis", health.Redis(client))
		logger.Info().Str("host", cfg.Redis.Host).Int("port", cfg.Redis.Port).Msg("redis connected")
	}

	return b, nil
}

// Cleanup releases everything NewBootstrap set up, newest first. Errors are
// logged and the first one is returned.
func (b *Bootstrap) Cleanup(ctx context.Context) error {
	err := b.cleanup.Execute(ctx)
	b.Logger.Info().Msg("cleanup completed")
	return err
}

// AddCleanup registers fn to run during Cleanup before anything registered
// earlier.
func (b *Bootstrap) AddCleanup(name string, fn CleanupFunc) {
	b.cleanup.Register(name, fn)
}

// RegisterService adds svc's health to the readiness checks.
func (b *Bootstrap) RegisterService(svc Service) {
	b.Health.Register(svc.Name(), health.Reporter(svc))
}
