package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// CheckHealth runs "SELECT 1" against the database. Failures are reported as
// errors.UnavailableError. The default timeout is 5 seconds unless the context
// already carries a deadline.
func CheckHealth(ctx context.Context, db Database) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var result int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return errors.NewUnavailable("postgres", fmt.Errorf("health check failed: %w", err))
	}
	if result != 1 {
		return errors.NewUnavailable("postgres", fmt.Errorf("health check returned unexpected result: %d", result))
	}
	return nil
}

// Check implements the health.Checker interface for the database pool.
func (p *Pool) Check(ctx context.Context) error {
	return CheckHealth(ctx, p)
}
