package sensor

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/jonboulle/clockwork"
)

// scriptedSource returns results[i] on the i-th call and then repeats the last.
type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	results []func(ctx context.Context) ([]Sensor, error)
}

func (s *scriptedSource) FetchAllWithConfiguration(ctx context.Context) ([]Sensor, error) {
	s.mu.Lock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	fn := s.results[i]
	s.mu.Unlock()
	return fn(ctx)
}

func ok(sensors ...Sensor) func(context.Context) ([]Sensor, error) {
	return func(context.Context) ([]Sensor, error) { return sensors, nil }
}

func fail(err error) func(context.Context) ([]Sensor, error) {
	return func(context.Context) ([]Sensor, error) { return nil, err }
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poller")
		panic("unreachable")
	}
}

func TestPollerContinuesAfterFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.NewUnavailable("sensor gateway", stderrors.New("connection refused"))
	source := &scriptedSource{results: []func(context.Context) ([]Sensor, error){
		ok(Sensor{ID: 1, Name: "boiler"}, Sensor{ID: 2, Name: "chiller"}),
		fail(boom),
		ok(Sensor{ID: 3, Name: "pump"}),
	}}

	interval := 10 * time.Second
	p := NewPoller(source, config.PollerConfig{Interval: interval}, WithClock(clock))

	updates := make(chan Update, 10)
	errs := make(chan error, 10)
	p.OnUpdate(func(u Update) { updates <- u })
	p.OnError(func(err error) { errs <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Cycle 1: two updates in source order.
	if u := waitFor(t, updates); u.Sensor.ID != 1 {
		t.Errorf("first update = %d, want 1", u.Sensor.ID)
	}
	if u := waitFor(t, updates); u.Sensor.ID != 2 {
		t.Errorf("second update = %d, want 2", u.Sensor.ID)
	}

	// Cycle 2: exactly one error.
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(interval)
	err := waitFor(t, errs)
	if !errors.IsFailed(err) || !errors.IsUnavailable(err) {
		t.Errorf("error notification = %v", err)
	}

	// Cycle 3: polling continued.
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(interval)
	if u := waitFor(t, updates); u.Sensor.ID != 3 {
		t.Errorf("third cycle update = %d, want 3", u.Sensor.ID)
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 || len(updates) != 0 {
		t.Errorf("unexpected extra notifications: %d errors, %d updates", len(errs), len(updates))
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
}

func TestPollerCancellationDuringSleep(t *testing.T) {
	source := &scriptedSource{results: []func(context.Context) ([]Sensor, error){ok(Sensor{ID: 1})}}
	p := NewPoller(source, config.PollerConfig{Interval: 10 * time.Second})

	cycled := make(chan struct{}, 1)
	p.OnUpdate(func(Update) {
		select {
		case cycled <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, cycled)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	cancel()
	if err := waitFor(t, done); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("loop exited %v after cancellation", elapsed)
	}
}

func TestPollerCancellationIsNotAnError(t *testing.T) {
	started := make(chan struct{})
	source := SourceFunc(func(ctx context.Context) ([]Sensor, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := NewPoller(source, config.PollerConfig{Interval: time.Second})

	var errorCount atomic.Int32
	p.OnError(func(error) { errorCount.Add(1) })

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, started)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if errorCount.Load() != 0 {
		t.Errorf("got %d error notifications for a deliberate shutdown", errorCount.Load())
	}
}

func TestPollerFetchTimeoutIsReported(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := SourceFunc(func(ctx context.Context) ([]Sensor, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := NewPoller(source, config.PollerConfig{Interval: time.Minute, FetchTimeout: 10 * time.Millisecond}, WithClock(clock))

	errs := make(chan error, 1)
	p.OnError(func(err error) { errs <- err })

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(context.Background())

	if err := waitFor(t, errs); !errors.IsTimeout(err) {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestPollerStateMachine(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &scriptedSource{results: []func(context.Context) ([]Sensor, error){ok()}}
	p := NewPoller(source, config.PollerConfig{Interval: time.Minute}, WithClock(clock))

	if p.State() != StateIdle {
		t.Fatalf("new poller State() = %v", p.State())
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle poller = %v", err)
	}
	if err := p.Health(); err == nil {
		t.Error("idle poller reported healthy")
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ctx); !stderrors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := p.Run(ctx); !stderrors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run() while running error = %v, want ErrAlreadyRunning", err)
	}
	if err := p.Health(); err != nil {
		t.Errorf("running poller Health() = %v", err)
	}

	_ = p.Stop(ctx)
	_ = p.Stop(ctx)
	if p.State() != StateStopped {
		t.Fatalf("State() = %v, want stopped", p.State())
	}

	if err := p.Start(ctx); err != nil {
		t.Errorf("restart from stopped = %v", err)
	}
	_ = p.Stop(ctx)
}

func TestPollerHealthAfterRepeatedFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &scriptedSource{results: []func(context.Context) ([]Sensor, error){fail(stderrors.New("down"))}}
	p := NewPoller(source, config.PollerConfig{Interval: time.Second}, WithClock(clock))

	errs := make(chan error, 10)
	p.OnError(func(err error) { errs <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = p.Start(ctx)
	defer p.Stop(context.Background())

	for i := 0; i < unhealthyAfter; i++ {
		waitFor(t, errs)
		if i < unhealthyAfter-1 {
			_ = clock.BlockUntilContext(ctx, 1)
			clock.Advance(time.Second)
		}
	}
	if err := p.Health(); !errors.IsUnavailable(err) {
		t.Errorf("Health() = %v, want unavailable", err)
	}
}

func TestPollerSubscriberPanicDoesNotStopLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &scriptedSource{results: []func(context.Context) ([]Sensor, error){ok(Sensor{ID: 1})}}
	p := NewPoller(source, config.PollerConfig{Interval: time.Second}, WithClock(clock))

	seen := make(chan int, 4)
	p.OnUpdate(func(Update) { panic("subscriber bug") })
	p.OnUpdate(func(u Update) { seen <- u.Sensor.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = p.Start(ctx)
	defer p.Stop(context.Background())

	waitFor(t, seen)
	_ = clock.BlockUntilContext(ctx, 1)
	clock.Advance(time.Second)
	waitFor(t, seen)
}
