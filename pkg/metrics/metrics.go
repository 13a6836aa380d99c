// Package metrics provides Prometheus metrics collection with standardized naming
// conventions for vigil components. It supports counters, gauges, and histograms with
// label validation and duplicate prevention, plus a fixed set of standard metrics for
// the cache store, the operation executor, the sensor poller and the backup scheduler.
//
// Example usage:
//
//	if err := metrics.Init(cfg.Metrics); err != nil {
//	    log.Fatal(err)
//	}
//	if err := metrics.InitStandardMetrics(cfg.Metrics.Namespace); err != nil {
//	    log.Fatal(err)
//	}
//	mux.Handle(cfg.Metrics.Path, metrics.Handler())
package metrics

import (
	"net/http"
	"sync"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// registry is the global Prometheus registry for all metrics
	registry *prometheus.Registry

	// registryMu protects concurrent access to registry initialization
	registryMu sync.RWMutex

	// initialized tracks whether Init() has been called
	initialized bool
)

// Init initializes the metrics system with the provided configuration.
// It creates a new Prometheus registry; when metrics are enabled the Go runtime
// and process collectors are registered as well. The registry is exposed through
// Handler, which the HTTP service mounts on the configured path.
//
// This function is safe to call multiple times - subsequent calls are no-ops.
func Init(cfg config.MetricsConfig) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if initialized {
		return nil
	}

	registry = prometheus.NewRegistry()

	if cfg.Enabled {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	initialized = true
	return nil
}

// Handler returns an HTTP handler serving the global registry.
// If Init() has not been called it serves an empty registry.
func Handler() http.Handler {
	reg := Registry()
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the global Prometheus registry.
// Returns nil if Init() has not been called.
func Registry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsInitialized returns true if Init() has been called successfully.
func IsInitialized() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return initialized
}
