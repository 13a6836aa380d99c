// Package retry provides retry logic with exponential backoff.
//
// This package wraps github.com/cenkalti/backoff/v5 and integrates it with the vigil
// error package: cancellation is never retried, and the policy decides which other
// failures are worth another attempt. Waits are interrupted as soon as the context
// is cancelled.
//
// Example usage:
//
//	cfg := retry.Config{
//		MaxAttempts:  4,
//		InitialDelay: 100 * time.Millisecond,
//		MaxDelay:     5 * time.Second,
//		Multiplier:   2.0,
//		Policy:       retry.PolicyUnavailable,
//	}
//
//	err := retry.Do(ctx, cfg, func() error {
//		return source.Ping(ctx)
//	})
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// noElapsedLimit disables backoff's own elapsed-time cutoff.
const noElapsedLimit = time.Duration(math.MaxInt64)

// Do executes the provided function with retry logic based on the configuration.
// It respects context cancellation and applies exponential backoff between retries.
//
// Returns the error from the last attempt if all retries are exhausted, or the
// context's cause if the context was cancelled during a wait.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithData(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithData executes the provided function with retry logic and returns a value.
// It works the same as Do but supports functions that return both a value and an error.
//
// Example:
//
//	sensors, err := retry.DoWithData(ctx, cfg, func() ([]sensor.Sensor, error) {
//		return source.FetchAllWithConfiguration(ctx)
//	})
func DoWithData[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(NewBackOff(cfg)),
		backoff.WithMaxTries(cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(noElapsedLimit),
	}
	if cfg.MaxElapsedTime > 0 {
		opts[2] = backoff.WithMaxElapsedTime(cfg.MaxElapsedTime)
	}
	if cfg.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			cfg.OnRetry(err, attempt, wait)
		}))
	}

	operation := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !cfg.shouldRetry(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	}

	return backoff.Retry(ctx, operation, opts...)
}

// NewBackOff builds the exponential backoff described by cfg. The first wait is
// InitialDelay and each following wait is multiplied by Multiplier, capped at
// MaxDelay.
func NewBackOff(cfg Config) *backoff.ExponentialBackOff {
	cfg = cfg.withDefaults()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: cfg.Jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
	}
	b.Reset()
	return b
}
