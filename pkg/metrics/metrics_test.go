package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
)

// resetMetrics resets the global metrics state for testing
func resetMetrics() {
	registryMu.Lock()
	registry = nil
	initialized = false
	registryMu.Unlock()

	standardMu.Lock()
	cacheLookups, cacheEvictions = nil, nil
	operationCount, operationDuration, operationRetries = nil, nil, nil
	pollCycles, pollSensors = nil, nil
	backupCycles, backupRetained, backupLastSuccess = nil, nil, nil
	standardMu.Unlock()

	standardMetricsOnce = sync.Once{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MetricsConfig
	}{
		{"enabled", config.MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "test"}},
		{"disabled", config.MetricsConfig{Enabled: false, Path: "/metrics", Namespace: "test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetMetrics()
			if err := Init(tt.cfg); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if !IsInitialized() {
				t.Error("Init() succeeded but IsInitialized() = false")
			}
			if Registry() == nil {
				t.Error("Init() succeeded but Registry() = nil")
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	resetMetrics()
	cfg := config.MetricsConfig{Enabled: true, Namespace: "test"}

	if err := Init(cfg); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	reg := Registry()
	if err := Init(cfg); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if Registry() != reg {
		t.Error("second Init() replaced the registry")
	}
}

func TestNewCounterDuplicate(t *testing.T) {
	resetMetrics()
	if err := Init(config.MetricsConfig{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	opts := Opts{Namespace: "test", Subsystem: "cache", Name: "dup_total", Help: "dup"}
	if _, err := NewCounter(opts); err != nil {
		t.Fatalf("first NewCounter() error = %v", err)
	}
	if _, err := NewCounter(opts); err == nil {
		t.Error("duplicate NewCounter() should fail")
	}
}

func TestCollectors(t *testing.T) {
	resetMetrics()
	if err := Init(config.MetricsConfig{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	c, err := NewCounter(Opts{Namespace: "test", Name: "events_total", Help: "events", Labels: []string{"kind"}})
	if err != nil {
		t.Fatalf("NewCounter() error = %v", err)
	}
	c.Inc("a")
	c.Add(2, "a")

	g, err := NewGauge(Opts{Namespace: "test", Name: "level", Help: "level"})
	if err != nil {
		t.Fatalf("NewGauge() error = %v", err)
	}
	g.Set(3)
	g.Inc()
	g.Dec()

	h, err := NewHistogram(HistogramOpts{Opts: Opts{Namespace: "test", Name: "latency_seconds", Help: "latency"}})
	if err != nil {
		t.Fatalf("NewHistogram() error = %v", err)
	}
	h.Observe(0.2)

	body := scrape(t)
	for _, want := range []string{`test_events_total{kind="a"} 3`, "test_level 3", "test_latency_seconds_count 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestValidateMetricOpts(t *testing.T) {
	tests := []struct {
		name    string
		ns      string
		metric  string
		labels  []string
		wantErr bool
	}{
		{"valid", "vigil", "lookups_total", []string{"result"}, false},
		{"invalid name", "vigil", "lookups-total", nil, true},
		{"invalid label", "vigil", "lookups_total", []string{"bad-label"}, true},
		{"reserved label", "vigil", "lookups_total", []string{"__name"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMetricOpts(tt.ns, "", tt.metric, tt.labels)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateMetricOpts() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsBeforeInit(t *testing.T) {
	resetMetrics()

	if _, err := NewCounter(Opts{Namespace: "test", Name: "counter", Help: "Test"}); err == nil {
		t.Error("NewCounter() before Init() should return error")
	}

	// Record functions are no-ops before InitStandardMetrics.
	RecordCacheLookup(true)
	RecordOperation("test", "execute", OutcomeSuccess, time.Millisecond)
	RecordPoll(OutcomeFailure, 0)
	RecordBackup(OutcomeSuccess, 3, time.Now())
}

func TestStandardMetrics(t *testing.T) {
	resetMetrics()
	if err := Init(config.MetricsConfig{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := InitStandardMetrics("vigil"); err != nil {
		t.Fatalf("InitStandardMetrics() error = %v", err)
	}
	if err := InitStandardMetrics("vigil"); err != nil {
		t.Fatalf("second InitStandardMetrics() error = %v", err)
	}

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheEvictions("invalidated", 2)
	RecordOperation("poller", "timeout", OutcomeTimeout, 50*time.Millisecond)
	RecordRetry("poller")
	RecordPoll(OutcomeSuccess, 4)
	RecordBackup(OutcomeSuccess, 3, time.Unix(1700000000, 0))

	body := scrape(t)
	for _, want := range []string{
		`vigil_cache_lookups_total{result="hit"} 1`,
		`vigil_cache_lookups_total{result="miss"} 1`,
		`vigil_cache_evictions_total{reason="invalidated"} 2`,
		`vigil_executor_operations_total{category="poller",outcome="timeout",shape="timeout"} 1`,
		`vigil_executor_retries_total{category="poller"} 1`,
		`vigil_poller_sensors 4`,
		`vigil_backup_retained 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	return string(body)
}
