package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/Combine-Capital/vigil/pkg/executor"
	"github.com/Combine-Capital/vigil/pkg/lock"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/Combine-Capital/vigil/pkg/tracing"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// CycleReport summarizes one backup cycle.
type CycleReport struct {
	ID        string
	StartedAt time.Time
	Backup    Info
	Pruned    int
	Retained  int

	// Skipped is true when another process held the lease.
	Skipped bool

	// Err is the first failure of the cycle, if any.
	Err error
}

// Scheduler runs a backup then a prune once a day at a fixed local time.
type Scheduler struct {
	exec      Executor
	hour      int
	minute    int
	retention int
	location  *time.Location
	clock     clockwork.Clock
	logger    *logging.Logger
	runner    *executor.Executor
	locker    lock.Locker

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	next    time.Time
	lastErr error
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock sets the clock that drives the schedule.
func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLocation sets the time zone the trigger time is interpreted in.
// Default: time.Local.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logging.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithLocker makes each cycle run only in the process holding the lease.
func WithLocker(l lock.Locker) SchedulerOption {
	return func(s *Scheduler) {
		s.locker = l
	}
}

// NewScheduler creates a stopped scheduler from cfg.
func NewScheduler(exec Executor, cfg config.BackupConfig, opts ...SchedulerOption) (*Scheduler, error) {
	if exec == nil {
		return nil, errors.NewInvalidInput("executor", "backup executor is required")
	}
	hour, minute, err := config.ParseTimeOfDay(cfg.At)
	if err != nil {
		return nil, errors.NewInvalidInputWithCause("backup.at", "invalid trigger time", err)
	}
	if cfg.Retention < 1 {
		return nil, errors.NewInvalidInput("backup.retention", "must be at least 1")
	}

	s := &Scheduler{
		exec:      exec,
		hour:      hour,
		minute:    minute,
		retention: cfg.Retention,
		location:  time.Local,
		clock:     clockwork.NewRealClock(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("BackupScheduler")
	s.runner = executor.New(s.logger, executor.WithCategory("BackupScheduler"))
	return s, nil
}

// NextRun returns the first trigger time strictly after now. The trigger is
// built from the wall clock of each day, so it does not drift across DST changes.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.location)
	y, m, d := local.Date()
	next := time.Date(y, m, d, s.hour, s.minute, 0, 0, s.location)
	if !next.After(local) {
		next = time.Date(y, m, d+1, s.hour, s.minute, 0, 0, s.location)
	}
	return next
}

// Name identifies the scheduler as a service.
func (s *Scheduler) Name() string {
	return "backup-scheduler"
}

// Start arms the timer. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil
	go s.loop(ctx, s.done)
	return nil
}

// Stop disarms the timer and waits for an in-flight cycle to finish or for ctx
// to expire. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewCancelled("stop backup scheduler", ctx.Err())
	}
}

// Health reports an error when the scheduler is stopped or its last cycle failed.
func (s *Scheduler) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return fmt.Errorf("backup scheduler is stopped")
	}
	if s.lastErr != nil {
		return fmt.Errorf("last backup cycle failed: %w", s.lastErr)
	}
	return nil
}

// Next returns the armed trigger time, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.next = time.Time{}
		if s.done == done && s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
		close(done)
		s.logger.Info().Msg("backup scheduler stopped")
	}()

	for {
		now := s.clock.Now()
		next := s.NextRun(now)
		s.mu.Lock()
		s.next = next
		s.mu.Unlock()
		s.logger.Info().Time(logging.NextRun, next).Msg("backup scheduler armed")

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		report := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if !report.Skipped {
			s.mu.Lock()
			s.lastErr = report.Err
			s.mu.Unlock()
		}
	}
}

// RunCycle runs one backup followed by one prune. A failed backup skips the
// prune for this cycle.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	ctx, span := tracing.StartSpan(ctx, "backup.cycle")
	defer span.End()

	report := CycleReport{ID: uuid.NewString(), StartedAt: s.clock.Now()}
	logger := s.logger.With().Str("cycle_id", report.ID).Logger()

	if s.locker != nil {
		lease, ok, err := s.locker.TryAcquire(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("backup lease unavailable, skipping cycle")
			report.Skipped = true
			report.Err = err
			return report
		}
		if !ok {
			logger.Debug().Msg("backup lease held by another process, skipping cycle")
			report.Skipped = true
			return report
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("failed to release backup lease")
			}
		}()
	}

	backup := executor.Execute(ctx, s.runner, "backup", s.exec.BackupNow, Info{})
	if !backup.Success {
		report.Err = backup.Err
		tracing.SetSpanError(ctx, backup.Err)
		metrics.RecordBackup(outcomeOf(backup), -1, report.StartedAt)
		return report
	}
	report.Backup = backup.Value
	span.SetAttributes(tracing.AttrBackupFile.String(backup.Value.FileName))

	keep := s.retention
	pruned := executor.Execute(ctx, s.runner, "prune", func(ctx context.Context) (int, error) {
		return s.exec.Prune(ctx, keep)
	}, 0)
	if !pruned.Success {
		report.Err = pruned.Err
		tracing.SetSpanError(ctx, pruned.Err)
		metrics.RecordBackup(outcomeOf(pruned), -1, report.StartedAt)
		return report
	}
	report.Pruned = pruned.Value
	span.SetAttributes(tracing.AttrPruned.Int(pruned.Value))

	report.Retained = -1
	if list, err := s.exec.ListBackups(ctx); err == nil {
		report.Retained = len(list)
	}

	logger.Info().
		Str(logging.BackupFile, report.Backup.FileName).
		Int("pruned", report.Pruned).
		Int("retained", report.Retained).
		Msg("backup cycle completed")
	metrics.RecordBackup(metrics.OutcomeSuccess, report.Retained, report.StartedAt)
	return report
}

func outcomeOf[T any](r executor.Outcome[T]) string {
	switch {
	case r.TimedOut():
		return metrics.OutcomeTimeout
	case r.Cancelled():
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeFailure
	}
}
