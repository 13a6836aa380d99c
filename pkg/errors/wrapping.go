package errors

import (
	"fmt"
)

// Wrap wraps an error with additional context while preserving its category.
// Errors that carry no category are wrapped as a FailedError.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	switch {
	case IsTimeout(err):
		var te *TimeoutError
		As(err, &te)
		return &TimeoutError{op: msg, timeout: te.timeout, cause: err}
	case IsCancelled(err):
		return NewCancelled(msg, err)
	case IsUnavailable(err):
		var ue *UnavailableError
		As(err, &ue)
		return NewUnavailable(ue.backend, fmt.Errorf("%s: %w", msg, err))
	case IsNotFound(err):
		var nfe *NotFoundError
		As(err, &nfe)
		return NewNotFoundWithCause(nfe.resource, nfe.id, err)
	case IsConflict(err):
		var ce *ConflictError
		As(err, &ce)
		return NewConflict(ce.resource, ce.id, err)
	case IsInvalidInput(err):
		var iie *InvalidInputError
		As(err, &iie)
		return NewInvalidInputWithCause(iie.field, msg, err)
	default:
		return NewFailed(msg, err)
	}
}

// Wrapf wraps an error with a formatted message while preserving its category.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
