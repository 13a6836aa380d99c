// Package store provides the persistence backend behind vigil repositories: a small
// document engine keyed by (kind, id), a staged unit of work that commits mutations
// atomically, and typed tables that repositories read and write through.
//
// Three engines are available: an in-memory engine for tests and development, a
// bbolt engine for single-node deployments (and the source of file backups), and a
// Postgres engine storing JSONB documents.
//
// Example usage:
//
//	engine, err := store.Open(ctx, cfg.Store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	session := store.NewSession(engine)
//	sensors := store.NewTable(session, "Sensor", func(s sensor.Sensor) int { return s.ID })
//	_ = sensors.StageAdd(ctx, sensor.Sensor{ID: 1, Name: "boiler-temp"})
//	n, err := session.Commit(ctx)
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/database"
	"github.com/Combine-Capital/vigil/pkg/errors"
)

// Op is the kind of change a Mutation applies.
type Op int

const (
	// OpInsert creates a record; it fails with errors.ConflictError if the record exists.
	OpInsert Op = iota + 1
	// OpUpdate replaces a record; it fails with errors.NotFoundError if the record is missing.
	OpUpdate
	// OpDelete removes a record; a missing record affects nothing.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Mutation is one staged change to a record.
type Mutation struct {
	Kind string
	ID   string
	Op   Op
	Data []byte
}

// Engine is a document store keyed by kind and id.
type Engine interface {
	// Get returns the record stored under kind and id.
	Get(ctx context.Context, kind, id string) ([]byte, bool, error)

	// Scan calls fn for every record of kind in ascending id order.
	Scan(ctx context.Context, kind string, fn func(id string, data []byte) error) error

	// Apply applies all mutations atomically and returns the number of affected
	// records. If any mutation fails none of them is applied.
	Apply(ctx context.Context, mutations []Mutation) (int, error)

	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	// Close releases the engine's resources.
	Close() error
}

// Open creates the engine selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Engine, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryEngine(), nil
	case "bolt":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.NewUnavailable("bolt", err)
			}
		}
		return OpenBolt(cfg.Path, cfg.Timeout)
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		engine := NewPostgresEngine(pool)
		if err := engine.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return engine, nil
	default:
		return nil, errors.NewInvalidInput("store.driver", fmt.Sprintf("unknown driver %q", cfg.Driver))
	}
}

func validate(m Mutation) error {
	if m.Kind == "" {
		return errors.NewInvalidInput("kind", "must not be empty")
	}
	if m.ID == "" {
		return errors.NewInvalidInput("id", "must not be empty")
	}
	switch m.Op {
	case OpInsert, OpUpdate, OpDelete:
		return nil
	default:
		return errors.NewInvalidInput("op", m.Op.String())
	}
}
