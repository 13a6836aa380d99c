package runner

import (
	"time"

	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/jonboulle/clockwork"
)

// Option configures one service within the runner.
type Option func(*serviceConfig)

type serviceConfig struct {
	DependsOn     []string
	StartDelay    time.Duration
	RestartConfig RestartConfig
}

// WithDependsOn starts the service after the named services.
func WithDependsOn(names ...string) Option {
	return func(cfg *serviceConfig) {
		cfg.DependsOn = append(cfg.DependsOn, names...)
	}
}

// WithStartDelay waits before starting the service.
func WithStartDelay(d time.Duration) Option {
	return func(cfg *serviceConfig) {
		cfg.StartDelay = d
	}
}

// WithRestartPolicy overrides the restart policy.
func WithRestartPolicy(policy RestartPolicy) Option {
	return func(cfg *serviceConfig) {
		cfg.RestartConfig.Policy = policy
	}
}

// WithRestartConfig replaces the restart configuration.
func WithRestartConfig(rc RestartConfig) Option {
	return func(cfg *serviceConfig) {
		cfg.RestartConfig = rc
	}
}

// WithMaxRetries overrides the restart attempt cap.
func WithMaxRetries(n int) Option {
	return func(cfg *serviceConfig) {
		cfg.RestartConfig.MaxRetries = n
	}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock sets the clock for health polling, backoff and start delays.
func WithClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithHealthInterval sets how often running services are health-checked.
func WithHealthInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.healthInterval = d
	}
}

// WithDefaultRestart sets the restart config services get unless overridden.
func WithDefaultRestart(rc RestartConfig) RunnerOption {
	return func(r *Runner) {
		r.defaultRestart = rc
	}
}
