// Package cache provides the in-process cache store used by vigil repositories.
// Entries carry an absolute expiration and are evicted lazily on read or eagerly
// by an optional sweeper. Keys are spread over independently locked shards so that
// invalidating one entity type never blocks readers of another.
//
// Example usage:
//
//	store := cache.New(cfg.Cache, cache.WithLogger(logger))
//
//	sensors, err := cache.GetOrCreate(ctx, store, cache.CollectionKey("Sensor"), cache.DefaultEntityTTL,
//	    func(ctx context.Context) ([]sensor.Sensor, error) {
//	        return backend.FindAll(ctx)
//	    })
//
//	// After any mutation of sensors:
//	store.InvalidateByPrefix(cache.TypePrefix("Sensor"))
package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL applies to GetOrCreate calls without a positive TTL.
	DefaultTTL = 30 * time.Minute

	// DefaultEntityTTL is the TTL repositories use for entity caches.
	DefaultEntityTTL = 5 * time.Minute

	// DefaultShards is the number of key shards.
	DefaultShards = 32
)

// Eviction reasons reported to metrics.
const (
	reasonExpired     = "expired"
	reasonRemoved     = "removed"
	reasonInvalidated = "invalidated"
)

// Store is a concurrency-safe key/value store with per-entry absolute expiration
// and prefix invalidation. A Store must be created with New.
type Store struct {
	shards     []*shard
	clock      clockwork.Clock
	defaultTTL time.Duration
	logger     *logging.Logger
	group      *singleflight.Group
}

// shard owns its entries and the loads in flight for its keys; mu guards both.
type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
	loads   map[*load]struct{}
}

type entry struct {
	value     any
	expiresAt time.Time
}

// load tracks one in-flight factory call. A load overlapped by an invalidation
// of its key is marked stale and its result is not stored.
type load struct {
	key   string
	stale atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for expiry. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger used for invalidation and sweep events.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l.WithComponent("cache")
	}
}

// New creates a Store from the cache configuration. Zero values fall back to
// DefaultTTL and DefaultShards.
func New(cfg config.CacheConfig, opts ...Option) *Store {
	n := cfg.Shards
	if n <= 0 {
		n = DefaultShards
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Store{
		shards:     make([]*shard, n),
		clock:      clockwork.NewRealClock(),
		defaultTTL: ttl,
		logger:     logging.NewNop(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry), loads: make(map[*load]struct{})}
	}
	if cfg.SingleFlight {
		s.group = &singleflight.Group{}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the unexpired value cached under key, or invokes factory,
// stores its result for ttl (the store default when ttl <= 0) and returns it.
// Factory errors are returned unchanged and never populate the cache. A cached
// value of a different type than T is treated as a miss.
//
// With single-flight enabled, concurrent callers for the same missing key share
// one factory call made with the first caller's context.
func GetOrCreate[T any](ctx context.Context, s *Store, key string, ttl time.Duration, factory func(context.Context) (T, error)) (T, error) {
	if v, ok := s.Get(key); ok {
		if tv, ok := v.(T); ok {
			metrics.RecordCacheLookup(true)
			return tv, nil
		}
	}
	metrics.RecordCacheLookup(false)

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	loadFn := func() (T, error) {
		l := s.beginLoad(key)
		defer s.endLoad(l)

		v, err := factory(ctx)
		if err != nil {
			return v, err
		}
		s.storeLoaded(l, v, ttl)
		return v, nil
	}

	if s.group == nil {
		return loadFn()
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return loadFn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if tv, ok := v.(T); ok {
		return tv, nil
	}
	return loadFn()
}

// Get returns the unexpired value stored under key.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shardFor(key)
	now := s.clock.Now()

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Before(e.expiresAt) {
		return e.value, true
	}

	sh.mu.Lock()
	if cur, ok := sh.entries[key]; ok && !now.Before(cur.expiresAt) {
		delete(sh.entries, key)
		metrics.RecordCacheEvictions(reasonExpired, 1)
	}
	sh.mu.Unlock()
	return nil, false
}

// Set stores value under key for ttl (the store default when ttl <= 0).
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = entry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	sh.mu.Unlock()
}

// Remove evicts key. It is a no-op if the key is absent.
func (s *Store) Remove(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	s.markLoads(sh, func(k string) bool { return k == key })
	_, ok := sh.entries[key]
	delete(sh.entries, key)
	sh.mu.Unlock()

	if ok {
		metrics.RecordCacheEvictions(reasonRemoved, 1)
	}
}

// InvalidateByPrefix evicts every key starting with prefix and returns how many
// entries were removed. Shards are locked one at a time. Loads in flight for a
// matching key still return to their callers but are not stored.
func (s *Store) InvalidateByPrefix(prefix string) int {
	match := func(k string) bool { return strings.HasPrefix(k, prefix) }

	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		s.markLoads(sh, match)
		for k := range sh.entries {
			if match(k) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	metrics.RecordCacheEvictions(reasonInvalidated, removed)
	s.logger.Debug().Str(logging.CachePrefix, prefix).Int("removed", removed).Msg("cache prefix invalidated")
	return removed
}

// Len returns the number of stored entries, including expired entries not yet evicted.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Sweep eagerly removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expiresAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	metrics.RecordCacheEvictions(reasonExpired, removed)
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := s.Sweep(); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("expired cache entries swept")
			}
		}
	}
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) beginLoad(key string) *load {
	l := &load{key: key}
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.loads[l] = struct{}{}
	sh.mu.Unlock()
	return l
}

func (s *Store) endLoad(l *load) {
	sh := s.shardFor(l.key)
	sh.mu.Lock()
	delete(sh.loads, l)
	sh.mu.Unlock()
}

// markLoads marks matching in-flight loads of sh stale and forgets their
// single-flight calls so later callers start a fresh load. The caller holds sh.mu.
func (s *Store) markLoads(sh *shard, match func(string) bool) {
	for l := range sh.loads {
		if match(l.key) {
			l.stale.Store(true)
			if s.group != nil {
				s.group.Forget(l.key)
			}
		}
	}
}

func (s *Store) storeLoaded(l *load, value any, ttl time.Duration) {
	sh := s.shardFor(l.key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if l.stale.Load() {
		return
	}
	sh.entries[l.key] = entry{value: value, expiresAt: s.clock.Now().Add(ttl)}
}
