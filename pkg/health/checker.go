// Package health aggregates component health for vigil's liveness and
// readiness probes.
//
// Example usage:
//
//	h := health.New(health.WithLogger(logger))
//	h.Register("store", health.Ping(engine))
//	h.Register("redis", health.Redis(redisClient))
//	h.Register("sensor-poller", health.Reporter(poller))
//
//	mux.Handle("/health/live", h.LivenessHandler())
//	mux.Handle("/health/ready", h.ReadinessHandler())
package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Checker checks one component.
type Checker interface {
	// Check returns nil when the component is healthy. Implementations must
	// respect the deadline carried by ctx.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Pinger is implemented by the store engines and the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a component by pinging it.
func Ping(p Pinger) Checker {
	return CheckerFunc(p.Ping)
}

// HealthReporter is implemented by background services such as the sensor
// poller and the backup scheduler.
type HealthReporter interface {
	Health() error
}

// Reporter checks a service through its own Health report.
func Reporter(r HealthReporter) Checker {
	return CheckerFunc(func(context.Context) error {
		return r.Health()
	})
}

// Redis checks a Redis connection with PING.
func Redis(client redis.UniversalClient) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
