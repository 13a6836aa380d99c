// Package repository provides cached, typed repositories over a persistence backend.
//
// Reads go through the cache store under keys "{Type}_id_{id}" and "{Type}_all".
// Every mutation drops all cached entries of its type before returning, so no
// caller can read a cached value older than a mutation that already returned.
// Mutations are staged and only reach the backend on SaveChanges.
//
// Example usage:
//
//	sensors := repository.New[sensor.Sensor, int]("Sensor", store, sensorTable)
//
//	s, ok, err := sensors.GetByID(ctx, 7)
//	_ = sensors.Update(ctx, s)
//	_, err = sensors.SaveChanges(ctx)
package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Combine-Capital/vigil/pkg/cache"
	"github.com/Combine-Capital/vigil/pkg/logging"
)

// Backend is the persistence layer a Repository reads from and stages into.
type Backend[T any, ID comparable] interface {
	FindByID(ctx context.Context, id ID) (T, bool, error)
	FindAll(ctx context.Context) ([]T, error)
	FindWhere(ctx context.Context, pred func(T) bool) ([]T, error)
	StageAdd(ctx context.Context, v T) error
	StageUpdate(ctx context.Context, v T) error
	StageRemove(ctx context.Context, v T) error
	Commit(ctx context.Context) (int, error)
}

// CommitNotifier is implemented by backends whose unit of work is shared by
// several repositories. The hook receives the kinds touched by each commit.
type CommitNotifier interface {
	OnCommit(hook func(kinds []string))
}

// errAbsent keeps absent records out of the cache.
var errAbsent = stderrors.New("repository: record absent")

// Repository is a cached repository for entities of type T keyed by ID.
type Repository[T any, ID comparable] struct {
	tag     string
	cache   *cache.Store
	backend Backend[T, ID]
	ttl     time.Duration
	logger  *logging.Logger
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	ttl    time.Duration
	logger *logging.Logger
}

// WithTTL sets the lifetime of cached entries. Defaults to cache.DefaultEntityTTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// WithLogger sets the repository logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a repository for the entity type named tag. The tag is the
// namespace of every cache key the repository writes or invalidates.
func New[T any, ID comparable](tag string, c *cache.Store, backend Backend[T, ID], opts ...Option) *Repository[T, ID] {
	o := options{ttl: cache.DefaultEntityTTL, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = cache.DefaultEntityTTL
	}

	r := &Repository[T, ID]{
		tag:     tag,
		cache:   c,
		backend: backend,
		ttl:     o.ttl,
		logger:  o.logger.WithComponent("repository").WithFields(map[string]interface{}{logging.EntityType: tag}),
	}

	if n, ok := backend.(CommitNotifier); ok {
		n.OnCommit(func(kinds []string) {
			for _, k := range kinds {
				if k == tag {
					r.invalidate()
					return
				}
			}
		})
	}
	return r
}

// Tag returns the entity type name.
func (r *Repository[T, ID]) Tag() string {
	return r.tag
}

// GetByID returns the entity with id. An absent entity is reported with
// ok == false and is not cached.
func (r *Repository[T, ID]) GetByID(ctx context.Context, id ID) (T, bool, error) {
	v, err := cache.GetOrCreate(ctx, r.cache, cache.EntityKey(r.tag, id), r.ttl, func(ctx context.Context) (T, error) {
		v, ok, err := r.backend.FindByID(ctx, id)
		if err != nil {
			return v, err
		}
		if !ok {
			return v, errAbsent
		}
		return v, nil
	})
	if stderrors.Is(err, errAbsent) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// GetAll returns every entity. The returned slice is a copy the caller may modify.
func (r *Repository[T, ID]) GetAll(ctx context.Context) ([]T, error) {
	all, err := cache.GetOrCreate(ctx, r.cache, cache.CollectionKey(r.tag), r.ttl, r.backend.FindAll)
	if err != nil {
		return nil, err
	}
	return append(make([]T, 0, len(all)), all...), nil
}

// Find returns the entities matching pred. Results are never cached.
func (r *Repository[T, ID]) Find(ctx context.Context, pred func(T) bool) ([]T, error) {
	return r.backend.FindWhere(ctx, pred)
}

// Add stages the insertion of v.
func (r *Repository[T, ID]) Add(ctx context.Context, v T) error {
	defer r.invalidate()
	return r.backend.StageAdd(ctx, v)
}

// AddRange stages the insertion of every entity in vs, stopping at the first error.
func (r *Repository[T, ID]) AddRange(ctx context.Context, vs []T) error {
	defer r.invalidate()
	for _, v := range vs {
		if err := r.backend.StageAdd(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Update stages the replacement of v.
func (r *Repository[T, ID]) Update(ctx context.Context, v T) error {
	defer r.invalidate()
	return r.backend.StageUpdate(ctx, v)
}

// Remove stages the deletion of v.
func (r *Repository[T, ID]) Remove(ctx context.Context, v T) error {
	defer r.invalidate()
	return r.backend.StageRemove(ctx, v)
}

// RemoveRange stages the deletion of every entity in vs, stopping at the first error.
func (r *Repository[T, ID]) RemoveRange(ctx context.Context, vs []T) error {
	defer r.invalidate()
	for _, v := range vs {
		if err := r.backend.StageRemove(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// SaveChanges commits the staged mutations and returns the number of affected
// records. On failure the mutations stay staged.
func (r *Repository[T, ID]) SaveChanges(ctx context.Context) (int, error) {
	n, err := r.backend.Commit(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("commit failed")
		return 0, err
	}
	r.invalidate()
	return n, nil
}

func (r *Repository[T, ID]) invalidate() {
	n := r.cache.InvalidateByPrefix(cache.TypePrefix(r.tag))
	r.logger.Debug().
		Str(logging.CachePrefix, cache.TypePrefix(r.tag)).
		Int("removed", n).
		Msg("invalidated cached entries")
}
