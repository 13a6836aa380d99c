// Package runner starts vigil's services in dependency order, restarts the
// ones that turn unhealthy and stops them in reverse order.
//
// Example usage:
//
//	r, err := runner.NewFromConfig("vigil", cfg.Runner, logger)
//	r.Add(opsServer)
//	r.Add(poller, runner.WithDependsOn(opsServer.Name()))
//	r.Add(scheduler, runner.WithRestartPolicy(runner.RestartNever))
//
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Stop(context.Background())
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/service"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// DefaultHealthInterval is how often running services are checked.
const DefaultHealthInterval = 15 * time.Second

// restartStopTimeout bounds the Stop call of a restart.
const restartStopTimeout = 30 * time.Second

// Runner manages a set of services.
type Runner struct {
	name           string
	clock          clockwork.Clock
	logger         *logging.Logger
	healthInterval time.Duration
	defaultRestart RestartConfig

	mu       sync.RWMutex
	services map[string]*managedService
	order    []string
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ service.Service = (*Runner)(nil)

type managedService struct {
	service service.Service
	config  serviceConfig

	mu       sync.Mutex
	running  bool
	restarts int
	backoff  *backoff.ExponentialBackOff
}

func (m *managedService) setRunning(v bool) {
	m.mu.Lock()
	m.running = v
	m.mu.Unlock()
}

func (m *managedService) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// New creates an empty runner.
func New(name string, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:           name,
		clock:          clockwork.NewRealClock(),
		logger:         logging.NewNop(),
		healthInterval: DefaultHealthInterval,
		defaultRestart: DefaultRestartConfig(),
		services:       make(map[string]*managedService),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.healthInterval <= 0 {
		r.healthInterval = DefaultHealthInterval
	}
	r.logger = r.logger.WithComponent("runner")
	return r
}

// NewFromConfig creates a runner whose services default to the configured
// restart behavior.
func NewFromConfig(name string, cfg config.RunnerConfig, logger *logging.Logger, opts ...RunnerOption) (*Runner, error) {
	rc, err := RestartConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	base := []RunnerOption{
		WithDefaultRestart(rc),
		WithHealthInterval(cfg.HealthInterval),
	}
	if logger != nil {
		base = append(base, WithLogger(logger))
	}
	return New(name, append(base, opts...)...), nil
}

// Add registers svc. Services cannot be added while the runner is running.
func (r *Runner) Add(svc service.Service, opts ...Option) error {
	if svc == nil {
		return fmt.Errorf("service cannot be nil")
	}
	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cannot add service while runner is running")
	}
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %q already exists", name)
	}

	cfg := serviceConfig{RestartConfig: r.defaultRestart}
	for _, opt := range opts {
		opt(&cfg)
	}
	r.services[name] = &managedService{
		service: svc,
		config:  cfg,
		backoff: cfg.RestartConfig.newBackOff(),
	}
	return nil
}

// Start starts every service in dependency order. If one fails, the services
// already started are stopped and the error is returned.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner is already running")
	}
	if len(r.services) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("no services to start")
	}
	order, err := startOrder(r.services)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to resolve service dependencies: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.order = order
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	for _, name := range order {
		r.mu.RLock()
		m := r.services[name]
		r.mu.RUnlock()

		if err := r.startService(runCtx, name, m); err != nil {
			_ = r.Stop(context.WithoutCancel(ctx))
			return fmt.Errorf("failed to start service %q: %w", name, err)
		}
	}
	r.logger.Info().Strs("services", order).Msg("all services started")
	return nil
}

func (r *Runner) startService(ctx context.Context, name string, m *managedService) error {
	if d := m.config.StartDelay; d > 0 {
		select {
		case <-r.clock.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := m.service.Start(ctx); err != nil {
		return err
	}
	m.setRunning(true)
	r.logger.Info().Str(logging.Component, name).Msg("service started")

	if m.config.RestartConfig.Policy != RestartNever {
		r.wg.Add(1)
		go r.monitor(ctx, name, m)
	}
	return nil
}

// monitor checks m every health interval and restarts it per its policy.
func (r *Runner) monitor(ctx context.Context, name string, m *managedService) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		err := m.service.Health()
		m.mu.Lock()
		if err == nil {
			m.restarts = 0
			m.backoff.Reset()
			m.mu.Unlock()
			continue
		}
		attempt := m.restarts
		restart := m.config.RestartConfig.shouldRestart(err, attempt)
		if restart {
			m.restarts++
		}
		wait := m.backoff.NextBackOff()
		m.mu.Unlock()

		if !restart {
			r.logger.Warn().Err(err).Str(logging.Component, name).Int(logging.Attempt, attempt).
				Msg("service unhealthy, not restarting")
			continue
		}

		r.logger.Warn().Err(err).Str(logging.Component, name).Int(logging.Attempt, attempt+1).
			Dur("backoff", wait).Msg("service unhealthy, restarting")

		select {
		case <-r.clock.After(wait):
		case <-ctx.Done():
			return
		}
		r.restart(ctx, name, m)
	}
}

func (r *Runner) restart(ctx context.Context, name string, m *managedService) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restartStopTimeout)
	if err := m.service.Stop(stopCtx); err != nil {
		r.logger.Error().Err(err).Str(logging.Component, name).Msg("failed to stop service for restart")
	}
	cancel()
	m.setRunning(false)

	if ctx.Err() != nil {
		return
	}
	if err := m.service.Start(ctx); err != nil {
		r.logger.Error().Err(err).Str(logging.Component, name).Msg("failed to restart service")
		return
	}
	m.setRunning(true)
	r.logger.Info().Str(logging.Component, name).Msg("service restarted")
}

// Stop halts health monitoring, then stops services in reverse start order.
// It returns the first stop error.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
	}
	order := reversed(r.order)
	r.mu.Unlock()

	r.wg.Wait()

	var first error
	for _, name := range order {
		r.mu.RLock()
		m := r.services[name]
		r.mu.RUnlock()

		if !m.isRunning() {
			continue
		}
		if err := m.service.Stop(ctx); err != nil {
			r.logger.Error().Err(err).Str(logging.Component, name).Msg("failed to stop service")
			if first == nil {
				first = err
			}
		}
		m.setRunning(false)
	}
	r.logger.Info().Msg("all services stopped")
	return first
}

// Name returns the runner name.
func (r *Runner) Name() string {
	return r.name
}
