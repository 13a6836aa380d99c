// Package database provides PostgreSQL connection pooling with transaction management
// and health checks for the Postgres storage engine. It wraps pgxpool for connection
// pooling with configurable limits and timeouts.
//
// Example usage:
//
//	pool, err := database.NewPool(ctx, cfg.Store.Postgres)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	err = pool.WithTransaction(ctx, func(tx database.Transaction) error {
//	    _, err := tx.Exec(ctx, "DELETE FROM vigil_entities WHERE kind = $1 AND id = $2", "Sensor", "7")
//	    return err
//	})
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database defines the common interface for database operations.
// Both Pool and Transaction implement this interface.
type Database interface {
	// Query executes a query that returns rows, typically a SELECT.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)

	// QueryRow executes a query that is expected to return at most one row.
	// Errors are deferred until Row's Scan method is called.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row

	// Exec executes a query that doesn't return rows, typically INSERT, UPDATE, or DELETE.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Transaction extends Database with transaction control methods.
type Transaction interface {
	Database

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction.
	Rollback(ctx context.Context) error
}

// TransactionFunc is a function that performs database operations within a transaction.
// If it returns an error, the transaction will be rolled back.
// If it returns nil, the transaction will be committed.
type TransactionFunc func(tx Transaction) error
