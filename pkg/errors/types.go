package errors

import (
	"context"
	"errors"
)

// As is a re-export of errors.As for convenient access in error handling code.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a re-export of errors.Is for convenient access in error handling code.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is a re-export of errors.New.
func New(text string) error {
	return errors.New(text)
}

// IsCancelled checks if an error represents cancellation: a CancelledError,
// a TimeoutError, or a bare context.Canceled / context.DeadlineExceeded.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	var cerr *CancelledError
	if errors.As(err, &cerr) {
		return true
	}
	return IsTimeout(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout checks if an error is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var terr *TimeoutError
	return errors.As(err, &terr)
}

// IsFailed checks if an error is or wraps a FailedError.
func IsFailed(err error) bool {
	var ferr *FailedError
	return errors.As(err, &ferr)
}

// IsUnavailable checks if an error is or wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var uerr *UnavailableError
	return errors.As(err, &uerr)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nferr *NotFoundError
	return errors.As(err, &nferr)
}

// IsConflict checks if an error is or wraps a ConflictError.
func IsConflict(err error) bool {
	var cerr *ConflictError
	return errors.As(err, &cerr)
}

// IsInvalidInput checks if an error is or wraps an InvalidInputError.
func IsInvalidInput(err error) bool {
	var iierr *InvalidInputError
	return errors.As(err, &iierr)
}
