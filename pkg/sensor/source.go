package sensor

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/Combine-Capital/vigil/pkg/httpclient"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/repository"
	"github.com/sony/gobreaker"
)

// Source supplies the current sensor set.
type Source interface {
	FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Sensor, error)

// FetchAllWithConfiguration calls f.
func (f SourceFunc) FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error) {
	return f(ctx)
}

// RepositorySource reads sensors and their configurations through cached
// repositories and joins them.
type RepositorySource struct {
	sensors *repository.Repository[Sensor, int]
	configs *repository.Repository[Configuration, int]
}

// NewRepositorySource creates a source over the two repositories.
func NewRepositorySource(sensors *repository.Repository[Sensor, int], configs *repository.Repository[Configuration, int]) *RepositorySource {
	return &RepositorySource{sensors: sensors, configs: configs}
}

// FetchAllWithConfiguration returns every sensor with its configuration attached,
// if one exists.
func (s *RepositorySource) FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error) {
	sensors, err := s.sensors.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := s.configs.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]Configuration, len(configs))
	for _, c := range configs {
		byID[c.SensorID] = c
	}
	for i := range sensors {
		if c, ok := byID[sensors[i].ID]; ok {
			sensors[i].Configuration = &c
		}
	}
	return sensors, nil
}

// HTTPSource fetches sensors from the sensor gateway's REST API.
type HTTPSource struct {
	client *httpclient.Client
	path   string
}

// NewHTTPSource creates a source reading GET {base_url}/sensors?include=configuration.
func NewHTTPSource(client *httpclient.Client) *HTTPSource {
	return &HTTPSource{client: client, path: "/sensors"}
}

// FetchAllWithConfiguration calls the gateway.
func (s *HTTPSource) FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	_, err := s.client.Get(ctx, s.path).
		WithQuery("include", "configuration").
		IntoJSON(&sensors).
		Do()
	if err != nil {
		return nil, err
	}
	return sensors, nil
}

// BreakerSource stops calling a failing source for a while. An open circuit is
// reported as errors.UnavailableError. Cancellation does not count as a failure.
type BreakerSource struct {
	next Source
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps next in a circuit breaker configured by cfg.
func NewBreakerSource(name string, next Source, cfg config.BreakerConfig, logger *logging.Logger) *BreakerSource {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	log := logger.WithComponent("SensorPoller")

	return &BreakerSource{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("sensor source circuit changed state")
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.IsCancelled(err)
			},
		}),
	}
}

// FetchAllWithConfiguration calls the wrapped source unless the circuit is open.
func (s *BreakerSource) FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.FetchAllWithConfiguration(ctx)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.NewUnavailable("sensor source", err)
	}
	if err != nil {
		return nil, err
	}
	sensors, _ := v.([]Sensor)
	return sensors, nil
}

// State returns the circuit state.
func (s *BreakerSource) State() gobreaker.State {
	return s.cb.State()
}
