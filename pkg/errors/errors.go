// Package errors provides the structured error taxonomy shared by the vigil
// resilience layer. It defines error categories (Cancelled, Timeout, Failed,
// Unavailable, NotFound, Conflict, InvalidInput) so that callers can branch on
// the kind of failure without inspecting messages.
//
// Example usage:
//
//	if err := source.FetchAllWithConfiguration(ctx); err != nil {
//	    return errors.NewUnavailable("sensor gateway", err)
//	}
//
//	if !found {
//	    return errors.NewNotFound("backup", fileName)
//	}
package errors

import (
	"fmt"
	"time"
)

// CancelledError represents an operation that stopped because its caller
// requested cancellation.
type CancelledError struct {
	op    string
	cause error
}

// NewCancelled creates a new cancelled error for the named operation.
func NewCancelled(op string, cause error) error {
	return &CancelledError{op: op, cause: cause}
}

func (e *CancelledError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s cancelled: %v", e.op, e.cause)
	}
	return fmt.Sprintf("%s cancelled", e.op)
}

func (e *CancelledError) Unwrap() error {
	return e.cause
}

// Operation returns the name of the cancelled operation.
func (e *CancelledError) Operation() string {
	return e.op
}

// TimeoutError represents an operation cancelled because its time budget ran
// out. It is a specialization of cancellation: IsCancelled reports true for it.
type TimeoutError struct {
	op      string
	timeout string
	cause   error
}

// NewTimeout creates a new timeout error for the named operation.
func NewTimeout(op string, timeout time.Duration, cause error) error {
	return &TimeoutError{op: op, timeout: timeout.String(), cause: cause}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.op, e.timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.cause
}

// Operation returns the name of the operation that timed out.
func (e *TimeoutError) Operation() string {
	return e.op
}

// FailedError represents an operation whose underlying call returned an error.
// The cause carries the original error, possibly an UnavailableError.
type FailedError struct {
	op    string
	cause error
}

// NewFailed creates a new failed error wrapping the cause.
func NewFailed(op string, cause error) error {
	return &FailedError{op: op, cause: cause}
}

func (e *FailedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s failed: %v", e.op, e.cause)
	}
	return fmt.Sprintf("%s failed", e.op)
}

func (e *FailedError) Unwrap() error {
	return e.cause
}

// Operation returns the name of the failed operation.
func (e *FailedError) Operation() string {
	return e.op
}

// UnavailableError represents a backend that could not be reached.
// Examples: database connection refused, sensor gateway down, open circuit.
type UnavailableError struct {
	backend string
	cause   error
}

// NewUnavailable creates a new unavailable error for the given backend.
func NewUnavailable(backend string, cause error) error {
	return &UnavailableError{backend: backend, cause: cause}
}

func (e *UnavailableError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s unavailable: %v", e.backend, e.cause)
	}
	return fmt.Sprintf("%s unavailable", e.backend)
}

func (e *UnavailableError) Unwrap() error {
	return e.cause
}

// Backend returns the name of the unreachable backend.
func (e *UnavailableError) Backend() string {
	return e.backend
}

// NotFoundError represents an error when a requested resource doesn't exist.
// Examples: update of a missing record, restore of an unknown backup file.
type NotFoundError struct {
	resource string
	id       string
	cause    error
}

// NewNotFound creates a new not found error for the given resource and ID.
func NewNotFound(resource, id string) error {
	return &NotFoundError{resource: resource, id: id}
}

// NewNotFoundWithCause creates a new not found error with an underlying cause.
func NewNotFoundWithCause(resource, id string, cause error) error {
	return &NotFoundError{resource: resource, id: id, cause: cause}
}

func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s not found: %s (%v)", e.resource, e.id, e.cause)
	}
	return fmt.Sprintf("%s not found: %s", e.resource, e.id)
}

func (e *NotFoundError) Unwrap() error {
	return e.cause
}

// Resource returns the type of resource that wasn't found.
func (e *NotFoundError) Resource() string {
	return e.resource
}

// ID returns the identifier of the resource that wasn't found.
func (e *NotFoundError) ID() string {
	return e.id
}

// ConflictError represents a write rejected because the record already exists.
type ConflictError struct {
	resource string
	id       string
	cause    error
}

// NewConflict creates a new conflict error for the given resource and ID.
func NewConflict(resource, id string, cause error) error {
	return &ConflictError{resource: resource, id: id, cause: cause}
}

func (e *ConflictError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s already exists: %s (%v)", e.resource, e.id, e.cause)
	}
	return fmt.Sprintf("%s already exists: %s", e.resource, e.id)
}

func (e *ConflictError) Unwrap() error {
	return e.cause
}

// InvalidInputError represents an error due to invalid caller input or configuration.
type InvalidInputError struct {
	field string
	msg   string
	cause error
}

// NewInvalidInput creates a new invalid input error for the given field and message.
func NewInvalidInput(field, msg string) error {
	return &InvalidInputError{field: field, msg: msg}
}

// NewInvalidInputWithCause creates a new invalid input error with an underlying cause.
func NewInvalidInputWithCause(field, msg string, cause error) error {
	return &InvalidInputError{field: field, msg: msg, cause: cause}
}

func (e *InvalidInputError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid input for %s: %s (%v)", e.field, e.msg, e.cause)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.field, e.msg)
}

func (e *InvalidInputError) Unwrap() error {
	return e.cause
}

// Field returns the field name that had invalid input.
func (e *InvalidInputError) Field() string {
	return e.field
}

// Message returns the validation error message.
func (e *InvalidInputError) Message() string {
	return e.msg
}
