package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestErrorTypes verifies all error types are created correctly and implement error interface
func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "CancelledError without cause",
			err:  NewCancelled("poll", nil),
			want: "poll cancelled",
		},
		{
			name: "CancelledError with cause",
			err:  NewCancelled("poll", context.Canceled),
			want: "poll cancelled: context canceled",
		},
		{
			name: "TimeoutError",
			err:  NewTimeout("fetch", 50*time.Millisecond, nil),
			want: "fetch timed out after 50ms",
		},
		{
			name: "FailedError",
			err:  NewFailed("backup", errors.New("disk full")),
			want: "backup failed: disk full",
		},
		{
			name: "UnavailableError",
			err:  NewUnavailable("postgres", errors.New("connection refused")),
			want: "postgres unavailable: connection refused",
		},
		{
			name: "NotFoundError",
			err:  NewNotFound("sensor", "123"),
			want: "sensor not found: 123",
		},
		{
			name: "NotFoundError with cause",
			err:  NewNotFoundWithCause("backup", "vigil-1.db", errors.New("stat failed")),
			want: "backup not found: vigil-1.db (stat failed)",
		},
		{
			name: "ConflictError",
			err:  NewConflict("sensor", "7", nil),
			want: "sensor already exists: 7",
		},
		{
			name: "InvalidInputError",
			err:  NewInvalidInput("at", "must be HH:MM"),
			want: "invalid input for at: must be HH:MM",
		},
		{
			name: "InvalidInputError with cause",
			err:  NewInvalidInputWithCause("retention", "must be positive", errors.New("got -1")),
			want: "invalid input for retention: must be positive (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestErrorUnwrap verifies errors.Unwrap reaches the original cause
func TestErrorUnwrap(t *testing.T) {
	root := errors.New("root cause")

	tests := []struct {
		name string
		err  error
	}{
		{"CancelledError", NewCancelled("op", root)},
		{"TimeoutError", NewTimeout("op", time.Second, root)},
		{"FailedError", NewFailed("op", root)},
		{"UnavailableError", NewUnavailable("db", root)},
		{"NotFoundError", NewNotFoundWithCause("thing", "1", root)},
		{"ConflictError", NewConflict("thing", "1", root)},
		{"InvalidInputError", NewInvalidInputWithCause("f", "bad", root)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Unwrap(tt.err); got != root {
				t.Errorf("Unwrap() = %v, want %v", got, root)
			}
			if !errors.Is(tt.err, root) {
				t.Error("errors.Is should find root cause")
			}
		})
	}
}

// TestTypeChecking verifies the Is* helpers classify errors correctly
func TestTypeChecking(t *testing.T) {
	timeout := NewTimeout("fetch", time.Second, nil)
	cancelled := NewCancelled("fetch", nil)
	failed := NewFailed("fetch", NewUnavailable("gateway", nil))

	t.Run("timeout is also cancelled", func(t *testing.T) {
		if !IsTimeout(timeout) {
			t.Error("IsTimeout should be true")
		}
		if !IsCancelled(timeout) {
			t.Error("IsCancelled should be true for timeout")
		}
	})

	t.Run("cancelled is not timeout", func(t *testing.T) {
		if !IsCancelled(cancelled) {
			t.Error("IsCancelled should be true")
		}
		if IsTimeout(cancelled) {
			t.Error("IsTimeout should be false")
		}
	})

	t.Run("context errors count as cancelled", func(t *testing.T) {
		if !IsCancelled(context.Canceled) {
			t.Error("context.Canceled should be cancelled")
		}
		if !IsCancelled(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
			t.Error("wrapped DeadlineExceeded should be cancelled")
		}
	})

	t.Run("failed carries unavailable cause", func(t *testing.T) {
		if !IsFailed(failed) {
			t.Error("IsFailed should be true")
		}
		if !IsUnavailable(failed) {
			t.Error("IsUnavailable should see through FailedError")
		}
		if IsCancelled(failed) {
			t.Error("IsCancelled should be false")
		}
	})

	t.Run("nil is nothing", func(t *testing.T) {
		if IsCancelled(nil) || IsTimeout(nil) || IsFailed(nil) || IsNotFound(nil) {
			t.Error("nil should not match any category")
		}
	})

	t.Run("not found and conflict", func(t *testing.T) {
		if !IsNotFound(NewNotFound("a", "1")) {
			t.Error("IsNotFound should be true")
		}
		if !IsConflict(NewConflict("a", "1", nil)) {
			t.Error("IsConflict should be true")
		}
		if !IsInvalidInput(NewInvalidInput("a", "b")) {
			t.Error("IsInvalidInput should be true")
		}
	})
}

// TestWrapping verifies Wrap preserves the error category
func TestWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"timeout", NewTimeout("fetch", time.Second, nil), IsTimeout},
		{"cancelled", NewCancelled("fetch", nil), IsCancelled},
		{"unavailable", NewUnavailable("db", nil), IsUnavailable},
		{"not found", NewNotFound("sensor", "1"), IsNotFound},
		{"conflict", NewConflict("sensor", "1", nil), IsConflict},
		{"invalid input", NewInvalidInput("at", "bad"), IsInvalidInput},
		{"plain error becomes failed", errors.New("boom"), IsFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, "context")
			if !tt.check(wrapped) {
				t.Errorf("Wrap lost category for %v", wrapped)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Error("wrapped error should still match original")
			}
		})
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("boom"), "saving %s", "sensor")
	if err.Error() != "saving sensor failed: boom" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "msg %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
