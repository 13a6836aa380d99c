package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
	"go.etcd.io/bbolt"
)

// BoltEngine stores each kind in its own bbolt bucket.
type BoltEngine struct {
	db *bbolt.DB
}

var _ Engine = (*BoltEngine)(nil)

// OpenBolt opens (or creates) the bbolt file at path. timeout bounds the wait
// for the file lock held by another process.
func OpenBolt(path string, timeout time.Duration) (*BoltEngine, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.NewUnavailable("bolt", fmt.Errorf("open %s: %w", path, err))
	}
	return &BoltEngine{db: db}, nil
}

// NewBoltEngine wraps an already open database.
func NewBoltEngine(db *bbolt.DB) *BoltEngine {
	return &BoltEngine{db: db}
}

// DB returns the underlying database, used for file snapshots.
func (e *BoltEngine) DB() *bbolt.DB {
	return e.db
}

// Get returns a copy of the record stored under kind and id.
func (e *BoltEngine) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(id)); data != nil {
			out = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Scan calls fn for every record of kind in key order inside one read transaction.
func (e *BoltEngine) Scan(ctx context.Context, kind string, fn func(id string, data []byte) error) error {
	return e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return errors.NewCancelled("scan "+kind, err)
			}
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}

// Apply runs the batch in a single read-write transaction.
func (e *BoltEngine) Apply(ctx context.Context, mutations []Mutation) (int, error) {
	affected := 0
	err := e.db.Update(func(tx *bbolt.Tx) error {
		for _, m := range mutations {
			if err := validate(m); err != nil {
				return err
			}
			b, err := tx.CreateBucketIfNotExists([]byte(m.Kind))
			if err != nil {
				return err
			}
			key := []byte(m.ID)
			existing := b.Get(key) != nil

			switch m.Op {
			case OpInsert:
				if existing {
					return errors.NewConflict(m.Kind, m.ID, nil)
				}
				if err := b.Put(key, m.Data); err != nil {
					return err
				}
				affected++
			case OpUpdate:
				if !existing {
					return errors.NewNotFound(m.Kind, m.ID)
				}
				if err := b.Put(key, m.Data); err != nil {
					return err
				}
				affected++
			case OpDelete:
				if !existing {
					continue
				}
				if err := b.Delete(key); err != nil {
					return err
				}
				affected++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Ping opens and closes a read transaction.
func (e *BoltEngine) Ping(ctx context.Context) error {
	if err := e.db.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return errors.NewUnavailable("bolt", err)
	}
	return nil
}

// Close closes the database file.
func (e *BoltEngine) Close() error {
	return e.db.Close()
}
