// Package executor wraps operations with uniform logging, cancellation checks,
// retry with exponential backoff and timeout enforcement. Expected failures
// (operation errors, panics, cancellation, timeouts) never escape as errors or
// panics; they are reported in an Outcome.
//
// Example usage:
//
//	x := executor.New(logger, executor.WithCategory("SensorPoller"))
//
//	out := executor.ExecuteWithRetry(ctx, x, "fetch sensors", source.FetchAllWithConfiguration,
//	    3, 500*time.Millisecond, nil)
//	if !out.Success {
//	    logger.Warn().Err(out.Err).Msg("giving up")
//	}
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/Combine-Capital/vigil/pkg/retry"
	"github.com/Combine-Capital/vigil/pkg/tracing"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCategory is the log component of an executor created without WithCategory.
const DefaultCategory = "OperationExecutor"

// Call shapes, as reported to logs, spans and metrics.
const (
	shapeExecute = "execute"
	shapeRetry   = "retry"
	shapeTimeout = "timeout"
)

// errDeadline is the cause of a context cancelled by ExecuteWithTimeout.
var errDeadline = stderrors.New("executor: timeout elapsed")

// Executor runs operations. It holds no mutable state and is safe for concurrent use.
type Executor struct {
	logger   *logging.Logger
	category string
}

// Option configures an Executor.
type Option func(*Executor)

// WithCategory sets the category used as the log component, span attribute and
// metrics label.
func WithCategory(category string) Option {
	return func(x *Executor) {
		x.category = category
	}
}

// New creates an Executor that logs through logger. A nil logger discards output.
func New(logger *logging.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	x := &Executor{category: DefaultCategory}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = logger.WithComponent(x.category)
	return x
}

// Category returns the executor's category.
func (x *Executor) Category() string {
	return x.category
}

// Execute runs op once. A cancelled ctx is reported without calling op.
func Execute[T any](ctx context.Context, x *Executor, name string, op func(context.Context) (T, error), fallback T) Outcome[T] {
	ctx, c := x.begin(ctx, name, shapeExecute)
	if err := ctx.Err(); err != nil {
		return finish(ctx, x, c, 0, fallback, errors.NewCancelled(name, err), fallback)
	}
	v, err := call(ctx, op)
	return finish(ctx, x, c, 1, v, err, fallback)
}

// ExecuteWithRetry runs op up to retryCount+1 times. After the n-th failed
// attempt (0-based) it waits baseDelay·2^n. Cancellation, whether returned by op
// or signalled during a wait, ends the call at once and is never retried. The
// outcome of an exhausted call carries the last attempt's error.
func ExecuteWithRetry[T any](ctx context.Context, x *Executor, name string, op func(context.Context) (T, error), retryCount int, baseDelay time.Duration, fallback T) Outcome[T] {
	ctx, c := x.begin(ctx, name, shapeRetry)
	if retryCount < 0 {
		retryCount = 0
	}
	if baseDelay <= 0 {
		// A zero InitialDelay would be replaced by the retry default.
		baseDelay = time.Nanosecond
	}

	attempts := 0
	cfg := retry.Config{
		MaxAttempts:  uint(retryCount + 1),
		InitialDelay: baseDelay,
		MaxDelay:     time.Duration(math.MaxInt64),
		Multiplier:   2,
		OnRetry: func(err error, attempt int, wait time.Duration) {
			metrics.RecordRetry(x.category)
			x.logger.Warn().
				Err(err).
				Str(logging.Operation, name).
				Int(logging.Attempt, attempt).
				Dur("wait", wait).
				Msg("operation attempt failed, retrying")
		},
	}

	v, err := retry.DoWithData(ctx, cfg, func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, errors.NewCancelled(name, err)
		}
		attempts++
		return call(ctx, op)
	})
	return finish(ctx, x, c, attempts, v, err, fallback)
}

// ExecuteWithTimeout runs op with a context that is cancelled after timeout and
// returns no later than the deadline, even if op ignores its context. The
// goroutine running an uncooperative op is left to finish on its own. A timeout
// is reported as *errors.TimeoutError; cancellation of ctx by the caller as
// *errors.CancelledError. A non-positive timeout runs op without a deadline.
func ExecuteWithTimeout[T any](ctx context.Context, x *Executor, name string, op func(context.Context) (T, error), timeout time.Duration, fallback T) Outcome[T] {
	ctx, c := x.begin(ctx, name, shapeTimeout)
	if err := ctx.Err(); err != nil {
		return finish(ctx, x, c, 0, fallback, errors.NewCancelled(name, err), fallback)
	}
	if timeout <= 0 {
		v, err := call(ctx, op)
		return finish(ctx, x, c, 1, v, err, fallback)
	}

	tctx, cancel := context.WithTimeoutCause(ctx, timeout, errDeadline)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(tctx, op)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return finish(ctx, x, c, 1, r.v, classifyDeadline(ctx, tctx, name, timeout, r.err), fallback)
	case <-tctx.Done():
		var err error
		if cerr := ctx.Err(); cerr != nil {
			err = errors.NewCancelled(name, cerr)
		} else {
			err = errors.NewTimeout(name, timeout, context.Cause(tctx))
		}
		return finish(ctx, x, c, 1, fallback, err, fallback)
	}
}

// classifyDeadline reports err as a timeout when op gave up because the
// deadline of tctx elapsed. Errors unrelated to the context pass through even
// if they arrive after the deadline.
func classifyDeadline(ctx, tctx context.Context, name string, timeout time.Duration, err error) error {
	if err == nil || ctx.Err() != nil || context.Cause(tctx) != errDeadline {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, errDeadline) {
		return errors.NewTimeout(name, timeout, err)
	}
	return err
}

// Run runs op once.
func (x *Executor) Run(ctx context.Context, name string, op func(context.Context) error) Result {
	return Execute(ctx, x, name, void(op), struct{}{})
}

// RunWithRetry is the valueless form of ExecuteWithRetry.
func (x *Executor) RunWithRetry(ctx context.Context, name string, op func(context.Context) error, retryCount int, baseDelay time.Duration) Result {
	return ExecuteWithRetry(ctx, x, name, void(op), retryCount, baseDelay, struct{}{})
}

// RunWithTimeout is the valueless form of ExecuteWithTimeout.
func (x *Executor) RunWithTimeout(ctx context.Context, name string, op func(context.Context) error, timeout time.Duration) Result {
	return ExecuteWithTimeout(ctx, x, name, void(op), timeout, struct{}{})
}

func void(op func(context.Context) error) func(context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}
}

// call runs op, turning a panic into an error.
func call[T any](ctx context.Context, op func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx)
}

type callState struct {
	name  string
	shape string
	start time.Time
	span  trace.Span
}

func (x *Executor) begin(ctx context.Context, name, shape string) (context.Context, callState) {
	ctx, span := tracing.StartSpan(ctx, x.category+"."+name,
		trace.WithAttributes(tracing.OperationAttributes(x.category, name, shape)...))
	x.logger.Debug().
		Str(logging.Operation, name).
		Str("shape", shape).
		Msg("operation started")
	return ctx, callState{name: name, shape: shape, start: time.Now(), span: span}
}

// finish classifies err, then logs, traces and records the call.
func finish[T any](ctx context.Context, x *Executor, c callState, attempts int, v T, err error, fallback T) Outcome[T] {
	defer c.span.End()
	d := time.Since(c.start)
	c.span.SetAttributes(tracing.AttrAttempts.Int(attempts))

	if err == nil {
		metrics.RecordOperation(x.category, c.shape, metrics.OutcomeSuccess, d)
		c.span.SetAttributes(tracing.AttrOutcome.String(metrics.OutcomeSuccess))
		x.logger.Debug().
			Str(logging.Operation, c.name).
			Int(logging.Attempt, attempts).
			Int64(logging.Duration, d.Milliseconds()).
			Msg("operation succeeded")
		return Outcome[T]{Success: true, Value: v, Attempts: attempts, Duration: d}
	}

	err = classify(c.name, err)
	outcome := metrics.OutcomeFailure
	event := x.logger.Error()
	msg := "operation failed"
	switch {
	case errors.IsTimeout(err):
		outcome, event, msg = metrics.OutcomeTimeout, x.logger.Warn(), "operation timed out"
	case errors.IsCancelled(err):
		outcome, event, msg = metrics.OutcomeCancelled, x.logger.Info(), "operation cancelled"
	}

	metrics.RecordOperation(x.category, c.shape, outcome, d)
	c.span.SetAttributes(tracing.AttrOutcome.String(outcome))
	tracing.SetSpanError(ctx, err)
	event.Err(err).
		Str(logging.Operation, c.name).
		Int(logging.Attempt, attempts).
		Int64(logging.Duration, d.Milliseconds()).
		Msg(msg)

	return Outcome[T]{Value: fallback, Err: err, Attempts: attempts, Duration: d}
}

// classify maps err onto the executor's error categories.
func classify(name string, err error) error {
	var (
		cancelled *errors.CancelledError
		timeout   *errors.TimeoutError
	)
	switch {
	case errors.As(err, &timeout), errors.As(err, &cancelled):
		return err
	case errors.IsCancelled(err):
		return errors.NewCancelled(name, err)
	default:
		return errors.NewFailed(name, err)
	}
}
