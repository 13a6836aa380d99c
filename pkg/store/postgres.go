package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Combine-Capital/vigil/pkg/database"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS vigil_entities (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
)`
	getSQL    = `SELECT data FROM vigil_entities WHERE kind = $1 AND id = $2`
	scanSQL   = `SELECT id, data FROM vigil_entities WHERE kind = $1 ORDER BY id`
	insertSQL = `INSERT INTO vigil_entities (kind, id, data) VALUES ($1, $2, $3)`
	updateSQL = `UPDATE vigil_entities SET data = $3, updated_at = now() WHERE kind = $1 AND id = $2`
	deleteSQL = `DELETE FROM vigil_entities WHERE kind = $1 AND id = $2`

	uniqueViolation = "23505"
)

// PostgresEngine stores records as JSONB rows of the vigil_entities table.
type PostgresEngine struct {
	pool *database.Pool
}

var _ Engine = (*PostgresEngine)(nil)

// NewPostgresEngine creates an engine on an open pool.
func NewPostgresEngine(pool *database.Pool) *PostgresEngine {
	return &PostgresEngine{pool: pool}
}

// EnsureSchema creates the vigil_entities table if it does not exist.
func (e *PostgresEngine) EnsureSchema(ctx context.Context) error {
	if _, err := e.pool.Exec(ctx, schemaSQL); err != nil {
		return classify(err)
	}
	return nil
}

// Get returns the record stored under kind and id.
func (e *PostgresEngine) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	var data []byte
	err := e.pool.QueryRow(ctx, getSQL, kind, id).Scan(&data)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify(err)
	}
	return data, true, nil
}

// Scan calls fn for every record of kind ordered by id.
func (e *PostgresEngine) Scan(ctx context.Context, kind string, fn func(id string, data []byte) error) error {
	rows, err := e.pool.Query(ctx, scanSQL, kind)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return classify(err)
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Apply runs the batch in one transaction.
func (e *PostgresEngine) Apply(ctx context.Context, mutations []Mutation) (int, error) {
	affected := 0
	err := e.pool.WithTransaction(ctx, func(tx database.Transaction) error {
		for _, m := range mutations {
			if err := validate(m); err != nil {
				return err
			}
			switch m.Op {
			case OpInsert:
				if _, err := tx.Exec(ctx, insertSQL, m.Kind, m.ID, m.Data); err != nil {
					var pgErr *pgconn.PgError
					if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
						return errors.NewConflict(m.Kind, m.ID, err)
					}
					return classify(err)
				}
				affected++
			case OpUpdate:
				tag, err := tx.Exec(ctx, updateSQL, m.Kind, m.ID, m.Data)
				if err != nil {
					return classify(err)
				}
				if tag.RowsAffected() == 0 {
					return errors.NewNotFound(m.Kind, m.ID)
				}
				affected++
			case OpDelete:
				tag, err := tx.Exec(ctx, deleteSQL, m.Kind, m.ID)
				if err != nil {
					return classify(err)
				}
				affected += int(tag.RowsAffected())
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Ping verifies the database connection.
func (e *PostgresEngine) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return errors.NewUnavailable("postgres", err)
	}
	return nil
}

// Close closes the pool.
func (e *PostgresEngine) Close() error {
	e.pool.Close()
	return nil
}

// classify marks errors that did not come from the server as unavailability.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %w", err)
	}
	if errors.IsCancelled(err) {
		return err
	}
	return errors.NewUnavailable("postgres", err)
}
