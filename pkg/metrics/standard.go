package metrics

import (
	"sync"
	"time"
)

// Outcome label values shared by the standard metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
)

var (
	cacheLookups   *Counter
	cacheEvictions *Counter

	operationCount    *Counter
	operationDuration *Histogram
	operationRetries  *Counter

	pollCycles  *Counter
	pollSensors *Gauge

	backupCycles      *Counter
	backupRetained    *Gauge
	backupLastSuccess *Gauge

	// Ensure standard metrics are initialized only once
	standardMetricsOnce sync.Once
	standardMu          sync.RWMutex
)

// InitStandardMetrics registers the cache, executor, poller and backup metrics.
// Until it has been called successfully every Record* function is a no-op, so
// components can record unconditionally.
// It is safe to call multiple times - subsequent calls are no-ops.
func InitStandardMetrics(namespace string) error {
	var initErr error

	standardMetricsOnce.Do(func() {
		standardMu.Lock()
		defer standardMu.Unlock()

		counter := func(subsystem, name, help string, labels ...string) *Counter {
			if initErr != nil {
				return nil
			}
			var c *Counter
			c, initErr = NewCounter(Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Labels: labels})
			return c
		}
		gauge := func(subsystem, name, help string, labels ...string) *Gauge {
			if initErr != nil {
				return nil
			}
			var g *Gauge
			g, initErr = NewGauge(Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Labels: labels})
			return g
		}

		cacheLookups = counter("cache", "lookups_total", "Cache lookups by result (hit, miss)", "result")
		cacheEvictions = counter("cache", "evictions_total", "Cache entries removed by reason (expired, removed, invalidated)", "reason")

		operationCount = counter("executor", "operations_total", "Executed operations by category, shape and outcome", "category", "shape", "outcome")
		operationRetries = counter("executor", "retries_total", "Retry waits started by category", "category")
		if initErr == nil {
			operationDuration, initErr = NewHistogram(HistogramOpts{
				Opts: Opts{
					Namespace: namespace,
					Subsystem: "executor",
					Name:      "operation_duration_seconds",
					Help:      "Executed operation duration in seconds",
					Labels:    []string{"category", "shape"},
				},
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			})
		}

		pollCycles = counter("poller", "cycles_total", "Poll cycles by outcome", "outcome")
		pollSensors = gauge("poller", "sensors", "Sensors returned by the last successful poll")

		backupCycles = counter("backup", "cycles_total", "Backup cycles by outcome", "outcome")
		backupRetained = gauge("backup", "retained", "Backups kept after the last prune")
		backupLastSuccess = gauge("backup", "last_success_timestamp_seconds", "Unix time of the last successful backup")
	})

	return initErr
}

func standardReady() bool {
	standardMu.RLock()
	defer standardMu.RUnlock()
	return backupLastSuccess != nil
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if !standardReady() {
		return
	}
	if hit {
		cacheLookups.Inc("hit")
	} else {
		cacheLookups.Inc("miss")
	}
}

// RecordCacheEvictions counts n entries removed for reason.
func RecordCacheEvictions(reason string, n int) {
	if !standardReady() || n <= 0 {
		return
	}
	cacheEvictions.Add(float64(n), reason)
}

// RecordOperation records one executor call.
func RecordOperation(category, shape, outcome string, d time.Duration) {
	if !standardReady() {
		return
	}
	operationCount.Inc(category, shape, outcome)
	operationDuration.Observe(d.Seconds(), category, shape)
}

// RecordRetry counts one retry wait.
func RecordRetry(category string) {
	if !standardReady() {
		return
	}
	operationRetries.Inc(category)
}

// RecordPoll records one poll cycle; sensors is ignored unless the cycle succeeded.
func RecordPoll(outcome string, sensors int) {
	if !standardReady() {
		return
	}
	pollCycles.Inc(outcome)
	if outcome == OutcomeSuccess {
		pollSensors.Set(float64(sensors))
	}
}

// RecordBackup records one backup cycle.
func RecordBackup(outcome string, retained int, at time.Time) {
	if !standardReady() {
		return
	}
	backupCycles.Inc(outcome)
	if outcome == OutcomeSuccess {
		backupRetained.Set(float64(retained))
		backupLastSuccess.Set(float64(at.Unix()))
	}
}
