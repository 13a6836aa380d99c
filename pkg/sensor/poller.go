package sensor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/Combine-Capital/vigil/pkg/executor"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/Combine-Capital/vigil/pkg/tracing"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 10 * time.Second

// unhealthyAfter is the number of consecutive failed cycles after which Health
// reports the poller unhealthy.
const unhealthyAfter = 3

// ErrAlreadyRunning is returned when starting a poller that is running.
var ErrAlreadyRunning = stderrors.New("sensor poller already running")

// State is the lifecycle state of a Poller.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Poller periodically fetches sensors and notifies subscribers.
type Poller struct {
	source       Source
	interval     time.Duration
	fetchTimeout time.Duration
	exec         *executor.Executor
	clock        clockwork.Clock
	logger       *logging.Logger

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	onUpdate []func(Update)
	onError  []func(error)
	failures int
	lastErr  error
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock used for sleeping between cycles.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithLogger sets the poller logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithExecutor sets the executor used for fetches.
func WithExecutor(x *executor.Executor) Option {
	return func(p *Poller) {
		p.exec = x
	}
}

// NewPoller creates an idle poller over source.
func NewPoller(source Source, cfg config.PollerConfig, opts ...Option) *Poller {
	p := &Poller{
		source:       source,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		clock:        clockwork.NewRealClock(),
		logger:       logging.NewNop(),
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("SensorPoller")
	if p.exec == nil {
		p.exec = executor.New(p.logger, executor.WithCategory("SensorPoller"))
	}
	return p
}

// OnUpdate registers fn to receive an Update per sensor per successful cycle.
func (p *Poller) OnUpdate(fn func(Update)) {
	p.mu.Lock()
	p.onUpdate = append(p.onUpdate, fn)
	p.mu.Unlock()
}

// OnError registers fn to receive fetch failures. Cancellation is never reported.
func (p *Poller) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = append(p.onError, fn)
	p.mu.Unlock()
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run polls until ctx is cancelled or Stop is called, then returns nil. It
// fails with ErrAlreadyRunning if the poller is running.
func (p *Poller) Run(ctx context.Context) error {
	ctx, done, err := p.transition(ctx)
	if err != nil {
		return err
	}
	p.loop(ctx, done)
	return nil
}

// Start runs the polling loop in a new goroutine.
func (p *Poller) Start(ctx context.Context) error {
	ctx, done, err := p.transition(ctx)
	if err != nil {
		return err
	}
	go p.loop(ctx, done)
	return nil
}

// Stop cancels the loop and waits for it to exit or for ctx to expire. Stopping
// a poller that is not running does nothing.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewCancelled("stop sensor poller", ctx.Err())
	}
}

// Name identifies the poller as a service.
func (p *Poller) Name() string {
	return "sensor-poller"
}

// Health reports an error when the poller is not running or its recent cycles
// all failed.
func (p *Poller) Health() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return fmt.Errorf("sensor poller is %s", p.state)
	}
	if p.failures >= unhealthyAfter {
		return errors.NewUnavailable("sensor source", fmt.Errorf("%d consecutive poll failures: %w", p.failures, p.lastErr))
	}
	return nil
}

func (p *Poller) transition(ctx context.Context) (context.Context, chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateRunning {
		return nil, nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.state = StateRunning
	p.cancel = cancel
	p.done = make(chan struct{})
	p.failures = 0
	p.lastErr = nil
	return ctx, p.done, nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	p.logger.Info().Dur("interval", p.interval).Msg("sensor poller started")
	defer func() {
		p.mu.Lock()
		p.state = StateStopped
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
		close(done)
		p.logger.Info().Msg("sensor poller stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx)
		if !p.sleep(ctx) {
			return
		}
	}
}

// sleep waits one interval and reports false if ctx was cancelled meanwhile.
func (p *Poller) sleep(ctx context.Context) bool {
	timer := p.clock.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func (p *Poller) poll(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "sensor.poll")
	defer span.End()

	var out executor.Outcome[[]Sensor]
	if p.fetchTimeout > 0 {
		out = executor.ExecuteWithTimeout(ctx, p.exec, "fetch sensors", p.source.FetchAllWithConfiguration, p.fetchTimeout, nil)
	} else {
		out = executor.Execute(ctx, p.exec, "fetch sensors", p.source.FetchAllWithConfiguration, nil)
	}

	if !out.Success {
		if ctx.Err() != nil && out.Cancelled() && !out.TimedOut() {
			return
		}
		tracing.SetSpanError(ctx, out.Err)
		metrics.RecordPoll(metrics.OutcomeFailure, 0)
		p.recordFailure(out.Err)
		for _, fn := range p.errorCallbacks() {
			p.deliver(func() { fn(out.Err) })
		}
		return
	}

	p.recordSuccess()
	metrics.RecordPoll(metrics.OutcomeSuccess, len(out.Value))
	span.SetAttributes(tracing.AttrSensorCount.Int(len(out.Value)))
	p.logger.Debug().Int(logging.SensorCount, len(out.Value)).Msg("poll cycle completed")

	now := p.clock.Now()
	callbacks := p.updateCallbacks()
	for _, s := range out.Value {
		u := Update{Sensor: s, LastReadingAt: s.LastReadingAt, ObservedAt: now}
		for _, fn := range callbacks {
			p.deliver(func() { fn(u) })
		}
	}
}

// deliver runs a subscriber callback, logging a panic instead of ending the loop.
func (p *Poller) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("sensor poller subscriber panicked")
		}
	}()
	fn()
}

func (p *Poller) updateCallbacks() []func(Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(([]func(Update))(nil), p.onUpdate...)
}

func (p *Poller) errorCallbacks() []func(error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(([]func(error))(nil), p.onError...)
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.failures++
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	p.failures = 0
	p.lastErr = nil
	p.mu.Unlock()
}
