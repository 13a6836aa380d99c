package runner

import (
	"fmt"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/retry"
	"github.com/cenkalti/backoff/v5"
)

// RestartPolicy decides whether an unhealthy service is restarted.
type RestartPolicy int

const (
	RestartNever RestartPolicy = iota
	RestartAlways
	RestartOnFailure
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartNever:
		return "never"
	case RestartAlways:
		return "always"
	case RestartOnFailure:
		return "on-failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseRestartPolicy parses "never", "always" or "on-failure".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "never":
		return RestartNever, nil
	case "always":
		return RestartAlways, nil
	case "", "on-failure":
		return RestartOnFailure, nil
	default:
		return RestartNever, fmt.Errorf("unknown restart policy %q", s)
	}
}

// RestartConfig configures restarts of one service.
type RestartConfig struct {
	Policy RestartPolicy

	// MaxRetries caps restart attempts (0 = unlimited). The count resets once
	// the service reports healthy again.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Jitter randomizes each wait by up to this fraction.
	Jitter float64
}

// DefaultRestartConfig restarts on failure up to 5 times, backing off from
// 1s to 60s.
func DefaultRestartConfig() RestartConfig {
	return RestartConfig{
		Policy:         RestartOnFailure,
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.25,
	}
}

// RestartConfigFrom builds the default restart config from runner settings.
func RestartConfigFrom(cfg config.RunnerConfig) (RestartConfig, error) {
	rc := DefaultRestartConfig()
	policy, err := ParseRestartPolicy(cfg.RestartPolicy)
	if err != nil {
		return rc, err
	}
	rc.Policy = policy
	rc.MaxRetries = cfg.MaxRetries
	if cfg.InitialBackoff > 0 {
		rc.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		rc.MaxBackoff = cfg.MaxBackoff
	}
	return rc, nil
}

func (c RestartConfig) newBackOff() *backoff.ExponentialBackOff {
	return retry.NewBackOff(retry.Config{
		InitialDelay: c.InitialBackoff,
		MaxDelay:     c.MaxBackoff,
		Multiplier:   c.Multiplier,
		Jitter:       c.Jitter,
	})
}

// shouldRestart reports whether a service whose health check returned err
// should be restarted after attempt previous restarts.
func (c RestartConfig) shouldRestart(err error, attempt int) bool {
	if c.MaxRetries > 0 && attempt >= c.MaxRetries {
		return false
	}
	switch c.Policy {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return err != nil
	default:
		return false
	}
}
