package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// MemoryEngine keeps records in process memory.
type MemoryEngine struct {
	mu    sync.RWMutex
	kinds map[string]map[string][]byte
}

var _ Engine = (*MemoryEngine)(nil)

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{kinds: make(map[string]map[string][]byte)}
}

// Get returns a copy of the record stored under kind and id.
func (e *MemoryEngine) Get(ctx context.Context, kind, id string) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	data, ok := e.kinds[kind][id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Scan calls fn for every record of kind in ascending id order. fn runs
// without the engine lock held.
func (e *MemoryEngine) Scan(ctx context.Context, kind string, fn func(id string, data []byte) error) error {
	e.mu.RLock()
	records := e.kinds[kind]
	ids := make([]string, 0, len(records))
	snapshot := make(map[string][]byte, len(records))
	for id, data := range records {
		ids = append(ids, id)
		snapshot[id] = append([]byte(nil), data...)
	}
	e.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelled("scan "+kind, err)
		}
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

// Apply validates the whole batch against the current state and then applies it.
func (e *MemoryEngine) Apply(ctx context.Context, mutations []Mutation) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	type key struct{ kind, id string }
	overlay := make(map[key]*[]byte)
	exists := func(k key) bool {
		if v, ok := overlay[k]; ok {
			return v != nil
		}
		_, ok := e.kinds[k.kind][k.id]
		return ok
	}

	affected := 0
	for _, m := range mutations {
		if err := validate(m); err != nil {
			return 0, err
		}
		k := key{m.Kind, m.ID}
		switch m.Op {
		case OpInsert:
			if exists(k) {
				return 0, errors.NewConflict(m.Kind, m.ID, nil)
			}
			data := append([]byte(nil), m.Data...)
			overlay[k] = &data
			affected++
		case OpUpdate:
			if !exists(k) {
				return 0, errors.NewNotFound(m.Kind, m.ID)
			}
			data := append([]byte(nil), m.Data...)
			overlay[k] = &data
			affected++
		case OpDelete:
			if exists(k) {
				affected++
			}
			overlay[k] = nil
		}
	}

	for k, v := range overlay {
		if v == nil {
			delete(e.kinds[k.kind], k.id)
			continue
		}
		records, ok := e.kinds[k.kind]
		if !ok {
			records = make(map[string][]byte)
			e.kinds[k.kind] = records
		}
		records[k.id] = *v
	}
	return affected, nil
}

// Ping always succeeds.
func (e *MemoryEngine) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (e *MemoryEngine) Close() error {
	return nil
}
