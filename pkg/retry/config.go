package retry

import (
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// Policy defines when a function should be retried.
type Policy int

const (
	// PolicyAll retries every error except cancellation.
	PolicyAll Policy = iota
	// PolicyUnavailable retries only errors.UnavailableError failures.
	PolicyUnavailable
	// PolicyNone never retries (executes once).
	PolicyNone
)

// PolicyFunc is a custom function that determines if an error should be retried.
type PolicyFunc func(error) bool

// NotifyFunc is called before each wait with the error that caused the retry,
// the 1-based number of the attempt that failed, and the wait about to start.
type NotifyFunc func(err error, attempt int, wait time.Duration)

// Config holds the retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (initial attempt + retries).
	// Default is 10.
	MaxAttempts uint

	// InitialDelay is the wait after the first failed attempt. Default is 100ms.
	InitialDelay time.Duration

	// MaxDelay caps a single wait. Default is 5 seconds.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier. Default is 2.0.
	Multiplier float64

	// Jitter is the randomization factor (0.0 to 1.0). 0 means exact delays.
	Jitter float64

	// MaxElapsedTime is the maximum total time for all retry attempts.
	// 0 means no time limit.
	MaxElapsedTime time.Duration

	// Policy determines which errors should be retried.
	// Default is PolicyAll.
	Policy Policy

	// PolicyFunc is a custom policy function. If set, it takes precedence over Policy.
	// Cancellation is never retried regardless of PolicyFunc.
	PolicyFunc PolicyFunc

	// OnRetry is called before each backoff wait.
	OnRetry NotifyFunc
}

// withDefaults returns a config with default values applied.
func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	return c
}

// shouldRetry determines if an error should be retried based on the configured policy.
func (c Config) shouldRetry(err error) bool {
	if err == nil || errors.IsCancelled(err) {
		return false
	}

	if c.PolicyFunc != nil {
		return c.PolicyFunc(err)
	}

	switch c.Policy {
	case PolicyNone:
		return false
	case PolicyUnavailable:
		return errors.IsUnavailable(err)
	default:
		return true
	}
}
