package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Aggregate and per-check status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusOK        = "ok"
	StatusError     = "error"
)

const (
	DefaultCheckTimeout = 5 * time.Second
	DefaultCacheTTL     = time.Second
)

// Result is the aggregated result of all checks.
type Result struct {
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Healthy reports whether every check passed.
func (r *Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Failing returns the names of failed checks in sorted order.
func (r *Result) Failing() []string {
	var names []string
	for name, c := range r.Checks {
		if c.Status != StatusOK {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CheckResult is the result of one check.
type CheckResult struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Health runs registered checks concurrently. Results are cached briefly and
// concurrent callers share one in-flight run.
type Health struct {
	mu       sync.RWMutex
	checkers map[string]Checker

	group singleflight.Group

	cacheMu sync.Mutex
	cached  *Result
	expires time.Time

	checkTimeout time.Duration
	cacheTTL     time.Duration
	clock        clockwork.Clock
	logger       *logging.Logger
}

// Option configures Health.
type Option func(*Health)

// WithCheckTimeout bounds each check that has no earlier deadline.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Health) {
		h.checkTimeout = d
	}
}

// WithCacheTTL sets how long a result is reused. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(h *Health) {
		h.cacheTTL = d
	}
}

// WithClock sets the clock used for cache expiry and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(h *Health) {
		h.clock = c
	}
}

// WithLogger sets the logger that records failed checks.
func WithLogger(l *logging.Logger) Option {
	return func(h *Health) {
		h.logger = l
	}
}

// New creates an empty Health.
func New(opts ...Option) *Health {
	h := &Health{
		checkers:     make(map[string]Checker),
		checkTimeout: DefaultCheckTimeout,
		cacheTTL:     DefaultCacheTTL,
		clock:        clockwork.NewRealClock(),
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithComponent("health")
	return h
}

// Register adds or replaces the checker for name and drops the cached result.
func (h *Health) Register(name string, c Checker) {
	h.mu.Lock()
	h.checkers[name] = c
	h.mu.Unlock()
	h.ClearCache()
}

// Unregister removes the checker for name and reports whether it existed.
func (h *Health) Unregister(name string) bool {
	h.mu.Lock()
	_, ok := h.checkers[name]
	delete(h.checkers, name)
	h.mu.Unlock()
	if ok {
		h.ClearCache()
	}
	return ok
}

// Check runs every checker, or returns a result cached within the TTL.
func (h *Health) Check(ctx context.Context) *Result {
	h.cacheMu.Lock()
	if h.cached != nil && h.clock.Now().Before(h.expires) {
		r := h.cached
		h.cacheMu.Unlock()
		return r
	}
	h.cacheMu.Unlock()

	v, _, _ := h.group.Do("check", func() (interface{}, error) {
		r := h.run(ctx)
		h.cacheMu.Lock()
		h.cached = r
		h.expires = h.clock.Now().Add(h.cacheTTL)
		h.cacheMu.Unlock()
		return r, nil
	})
	return v.(*Result)
}

// CheckComponent runs the named checker, bypassing the cache.
func (h *Health) CheckComponent(ctx context.Context, name string) error {
	h.mu.RLock()
	c, ok := h.checkers[name]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("health checker %q not registered", name)
	}

	ctx, cancel := h.bound(ctx)
	defer cancel()
	return c.Check(ctx)
}

// IsHealthy reports whether every check passes.
func (h *Health) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ClearCache forces the next Check to run the checkers.
func (h *Health) ClearCache() {
	h.cacheMu.Lock()
	h.cached = nil
	h.expires = time.Time{}
	h.cacheMu.Unlock()
}

func (h *Health) run(ctx context.Context) *Result {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	result := &Result{
		Status:    StatusHealthy,
		CheckedAt: h.clock.Now(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cr := h.runOne(ctx, name, c)
			mu.Lock()
			result.Checks[name] = cr
			if cr.Status != StatusOK {
				result.Status = StatusUnhealthy
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return result
}

func (h *Health) runOne(ctx context.Context, name string, c Checker) (cr CheckResult) {
	ctx, cancel := h.bound(ctx)
	defer cancel()

	began := h.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			cr = CheckResult{Status: StatusError, Message: fmt.Sprintf("panic: %v", r)}
		}
		cr.DurationMs = h.clock.Since(began).Milliseconds()
		if cr.Status != StatusOK {
			h.logger.Warn().Str("check", name).Str(logging.Error, cr.Message).Msg("health check failed")
		}
	}()

	if err := c.Check(ctx); err != nil {
		return CheckResult{Status: StatusError, Message: err.Error()}
	}
	return CheckResult{Status: StatusOK}
}

func (h *Health) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.checkTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.checkTimeout)
}
