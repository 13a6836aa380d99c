package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Combine-Capital/vigil/pkg/errors"
)

// CommitHook is called after a successful commit with the distinct kinds the
// committed batch touched, in sorted order.
type CommitHook func(kinds []string)

// Session is a unit of work over an Engine. Mutations are staged in memory and
// become visible to readers only after Commit.
type Session struct {
	engine Engine

	// commitMu serializes commits; mu guards staged, generation and hooks.
	commitMu sync.Mutex
	mu       sync.Mutex
	staged   []Mutation
	// generation is bumped by Discard so an in-flight commit knows the
	// staged slice no longer starts with its batch.
	generation uint64
	hooks      []CommitHook
}

// NewSession creates a session over engine.
func NewSession(engine Engine) *Session {
	return &Session{engine: engine}
}

// Engine returns the underlying engine.
func (s *Session) Engine() Engine {
	return s.engine
}

// Stage appends a mutation to the pending batch.
func (s *Session) Stage(m Mutation) error {
	if err := validate(m); err != nil {
		return err
	}
	s.mu.Lock()
	s.staged = append(s.staged, m)
	s.mu.Unlock()
	return nil
}

// Pending returns the number of staged mutations.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Discard drops all staged mutations. A commit already in flight still
// applies the batch it took; mutations staged after Discard are kept.
func (s *Session) Discard() {
	s.mu.Lock()
	s.staged = nil
	s.generation++
	s.mu.Unlock()
}

// OnCommit registers a hook invoked after every successful commit.
func (s *Session) OnCommit(hook CommitHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Commit applies the staged batch atomically and returns the number of affected
// records. On failure the batch stays staged so the caller can retry or discard it.
// Mutations staged while the commit is in flight are kept for the next commit.
func (s *Session) Commit(ctx context.Context) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("commit", err)
	}

	s.mu.Lock()
	batch := append([]Mutation(nil), s.staged...)
	generation := s.generation
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	n, err := s.engine.Apply(ctx, batch)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.generation == generation {
		s.staged = append([]Mutation(nil), s.staged[len(batch):]...)
	}
	hooks := append([]CommitHook(nil), s.hooks...)
	s.mu.Unlock()

	kinds := distinctKinds(batch)
	for _, hook := range hooks {
		hook(kinds)
	}
	return n, nil
}

func distinctKinds(batch []Mutation) []string {
	seen := make(map[string]struct{}, len(batch))
	kinds := make([]string, 0, len(batch))
	for _, m := range batch {
		if _, ok := seen[m.Kind]; ok {
			continue
		}
		seen[m.Kind] = struct{}{}
		kinds = append(kinds, m.Kind)
	}
	sort.Strings(kinds)
	return kinds
}
