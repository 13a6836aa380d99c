package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Combine-Capital/vigil/pkg/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) Check(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

type reporter struct{ err error }

func (r reporter) Health() error { return r.err }

func TestCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		checks  map[string]Checker
		want    string
		failing []string
	}{
		{
			name:   "no checkers",
			checks: nil,
			want:   StatusHealthy,
		},
		{
			name: "all healthy",
			checks: map[string]Checker{
				"store":         Ping(store.NewMemoryEngine()),
				"sensor-poller": Reporter(reporter{}),
			},
			want: StatusHealthy,
		},
		{
			name: "one failing",
			checks: map[string]Checker{
				"store":            Ping(store.NewMemoryEngine()),
				"backup-scheduler": Reporter(reporter{err: errors.New("backup scheduler is stopped")}),
			},
			want:    StatusUnhealthy,
			failing: []string{"backup-scheduler"},
		},
		{
			name: "panicking checker",
			checks: map[string]Checker{
				"broken": CheckerFunc(func(context.Context) error { panic("nil engine") }),
			},
			want:    StatusUnhealthy,
			failing: []string{"broken"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(WithCacheTTL(0))
			for name, c := range tt.checks {
				h.Register(name, c)
			}

			result := h.Check(ctx)
			if result.Status != tt.want {
				t.Errorf("Status = %s, want %s", result.Status, tt.want)
			}
			if len(result.Checks) != len(tt.checks) {
				t.Errorf("got %d check results, want %d", len(result.Checks), len(tt.checks))
			}
			failing := result.Failing()
			if len(failing) != len(tt.failing) {
				t.Fatalf("Failing() = %v, want %v", failing, tt.failing)
			}
			for i := range failing {
				if failing[i] != tt.failing[i] {
					t.Errorf("Failing() = %v, want %v", failing, tt.failing)
				}
			}
		})
	}
}

func TestCheckCaching(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := &countingChecker{}

	h := New(WithClock(clock), WithCacheTTL(time.Second))
	h.Register("store", c)

	h.Check(ctx)
	h.Check(ctx)
	if got := c.calls.Load(); got != 1 {
		t.Errorf("checker ran %d times within TTL, want 1", got)
	}

	clock.Advance(time.Second)
	h.Check(ctx)
	if got := c.calls.Load(); got != 2 {
		t.Errorf("checker ran %d times after TTL, want 2", got)
	}

	h.ClearCache()
	h.Check(ctx)
	if got := c.calls.Load(); got != 3 {
		t.Errorf("checker ran %d times after ClearCache, want 3", got)
	}
}

func TestRegisterDropsCache(t *testing.T) {
	ctx := context.Background()
	h := New(WithCacheTTL(time.Hour))

	if !h.IsHealthy(ctx) {
		t.Fatal("empty Health is unhealthy")
	}
	h.Register("redis", CheckerFunc(func(context.Context) error { return errors.New("down") }))
	if h.IsHealthy(ctx) {
		t.Error("IsHealthy() served a stale result after Register")
	}
	if !h.Unregister("redis") {
		t.Error("Unregister() = false for registered checker")
	}
	if h.Unregister("redis") {
		t.Error("Unregister() = true for missing checker")
	}
	if !h.IsHealthy(ctx) {
		t.Error("IsHealthy() = false after Unregister")
	}
}

func TestCheckTimeout(t *testing.T) {
	h := New(WithCheckTimeout(20*time.Millisecond), WithCacheTTL(0))
	h.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	begin := time.Now()
	result := h.Check(context.Background())
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Check() took %v", elapsed)
	}
	if result.Healthy() {
		t.Error("slow checker reported healthy")
	}
}

func TestCheckComponent(t *testing.T) {
	ctx := context.Background()
	h := New()
	h.Register("poller", Reporter(reporter{err: errors.New("sensor poller is stopped")}))

	if err := h.CheckComponent(ctx, "poller"); err == nil {
		t.Error("CheckComponent(poller) = nil")
	}
	if err := h.CheckComponent(ctx, "missing"); err == nil {
		t.Error("CheckComponent(missing) = nil")
	}
}

func TestRedisChecker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := Redis(client)
	if err := c.Check(ctx); err != nil {
		t.Fatalf("Check() = %v", err)
	}
	mr.Close()
	if err := c.Check(ctx); err == nil {
		t.Error("Check() = nil with redis down")
	}
}

func TestHandlers(t *testing.T) {
	healthy := New()
	unhealthy := New()
	unhealthy.Register("store", CheckerFunc(func(context.Context) error { return errors.New("closed") }))

	tests := []struct {
		name    string
		handler http.Handler
		want    int
		key     string
	}{
		{"liveness ignores checks", unhealthy.LivenessHandler(), http.StatusOK, "status"},
		{"readiness healthy", healthy.ReadinessHandler(), http.StatusOK, "checks"},
		{"readiness unhealthy", unhealthy.ReadinessHandler(), http.StatusServiceUnavailable, "checks"},
		{"combined", unhealthy.HealthHandler(), http.StatusServiceUnavailable, "readiness"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if _, ok := body[tt.key]; !ok {
				t.Errorf("body missing %q: %s", tt.key, rec.Body.String())
			}
		})
	}
}

func TestConcurrentChecksShareRun(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	c := &countingChecker{}
	h := New()
	h.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-release
		return c.Check(ctx)
	}))

	done := make(chan *Result, 10)
	for i := 0; i < 10; i++ {
		go func() { done <- h.Check(ctx) }()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 10; i++ {
		if r := <-done; !r.Healthy() {
			t.Errorf("result %d unhealthy", i)
		}
	}
	if got := c.calls.Load(); got > 2 {
		t.Errorf("checker ran %d times for concurrent callers", got)
	}
}
