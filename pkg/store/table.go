package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// Table is a typed view of one kind in a Session. Records are encoded as JSON.
type Table[T any, ID comparable] struct {
	session *Session
	kind    string
	idOf    func(T) ID
}

// NewTable creates a table for kind. idOf extracts the identity of a record.
func NewTable[T any, ID comparable](session *Session, kind string, idOf func(T) ID) *Table[T, ID] {
	return &Table[T, ID]{session: session, kind: kind, idOf: idOf}
}

// Kind returns the record kind the table stores.
func (t *Table[T, ID]) Kind() string {
	return t.kind
}

// FindByID returns the committed record with id.
func (t *Table[T, ID]) FindByID(ctx context.Context, id ID) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, errors.NewCancelled("find "+t.kind, err)
	}
	data, ok, err := t.session.engine.Get(ctx, t.kind, formatID(id))
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, errors.Wrapf(err, "decoding %s %v", t.kind, id)
	}
	return v, true, nil
}

// FindAll returns every committed record ordered by encoded id.
func (t *Table[T, ID]) FindAll(ctx context.Context) ([]T, error) {
	return t.FindWhere(ctx, nil)
}

// FindWhere returns the committed records matching pred. A nil pred matches all.
func (t *Table[T, ID]) FindWhere(ctx context.Context, pred func(T) bool) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("find "+t.kind, err)
	}
	out := make([]T, 0)
	err := t.session.engine.Scan(ctx, t.kind, func(id string, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.Wrapf(err, "decoding %s %s", t.kind, id)
		}
		if pred == nil || pred(v) {
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StageAdd stages the insertion of v.
func (t *Table[T, ID]) StageAdd(ctx context.Context, v T) error {
	return t.stage(ctx, OpInsert, v)
}

// StageUpdate stages the replacement of v.
func (t *Table[T, ID]) StageUpdate(ctx context.Context, v T) error {
	return t.stage(ctx, OpUpdate, v)
}

// StageRemove stages the deletion of v.
func (t *Table[T, ID]) StageRemove(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("remove "+t.kind, err)
	}
	return t.session.Stage(Mutation{Kind: t.kind, ID: formatID(t.idOf(v)), Op: OpDelete})
}

// Commit commits the session the table belongs to.
func (t *Table[T, ID]) Commit(ctx context.Context) (int, error) {
	return t.session.Commit(ctx)
}

// OnCommit registers hook on the underlying session.
func (t *Table[T, ID]) OnCommit(hook func(kinds []string)) {
	t.session.OnCommit(hook)
}

func (t *Table[T, ID]) stage(ctx context.Context, op Op, v T) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled(op.String()+" "+t.kind, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInvalidInputWithCause(t.kind, "cannot encode record", err)
	}
	return t.session.Stage(Mutation{Kind: t.kind, ID: formatID(t.idOf(v)), Op: op, Data: data})
}

func formatID[ID comparable](id ID) string {
	return fmt.Sprint(id)
}
