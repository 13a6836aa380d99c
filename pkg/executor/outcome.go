package executor

import (
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// Outcome is the result of an executor call. Success implies Err == nil. A
// failed outcome carries the caller's fallback in Value and a non-nil Err that is
// an *errors.CancelledError, *errors.TimeoutError or *errors.FailedError.
type Outcome[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// Result is the outcome of an operation without a value.
type Result = Outcome[struct{}]

// Cancelled reports whether the call ended because of cancellation or a timeout.
func (o Outcome[T]) Cancelled() bool {
	return !o.Success && errors.IsCancelled(o.Err)
}

// TimedOut reports whether the call ended because its timeout elapsed.
func (o Outcome[T]) TimedOut() bool {
	return !o.Success && errors.IsTimeout(o.Err)
}

// Get returns the value and error, for callers that prefer Go's two-value form.
func (o Outcome[T]) Get() (T, error) {
	return o.Value, o.Err
}
