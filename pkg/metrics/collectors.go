package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// validMetricName validates metric names according to Prometheus conventions
	validMetricName = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

	// validLabelName validates label names according to Prometheus conventions
	validLabelName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Opts specifies the identity of a metric.
// The full metric name is "{namespace}_{subsystem}_{name}".
type Opts struct {
	Namespace string   // Metric namespace (e.g., "vigil")
	Subsystem string   // Metric subsystem (e.g., "cache", "poller")
	Name      string   // Metric name (e.g., "lookups_total")
	Help      string   // Human-readable help text
	Labels    []string // Label names for this metric
}

// HistogramOpts specifies options for creating a histogram.
type HistogramOpts struct {
	Opts
	Buckets []float64 // Histogram buckets (use nil for default)
}

// Counter is a Prometheus counter that can only increase.
type Counter struct {
	vec *prometheus.CounterVec
}

// Gauge is a Prometheus gauge that can increase or decrease.
type Gauge struct {
	vec *prometheus.GaugeVec
}

// Histogram is a Prometheus histogram that samples observations.
type Histogram struct {
	vec *prometheus.HistogramVec
}

// NewCounter creates and registers a new counter with the global registry.
// Returns an error if the metric name or labels are invalid, or if a metric
// with the same name is already registered.
func NewCounter(opts Opts) (*Counter, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, opts.Labels)
	if err := register(opts, vec); err != nil {
		return nil, fmt.Errorf("failed to register counter: %w", err)
	}
	return &Counter{vec: vec}, nil
}

// NewGauge creates and registers a new gauge with the global registry.
func NewGauge(opts Opts) (*Gauge, error) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, opts.Labels)
	if err := register(opts, vec); err != nil {
		return nil, fmt.Errorf("failed to register gauge: %w", err)
	}
	return &Gauge{vec: vec}, nil
}

// NewHistogram creates and registers a new histogram with the global registry.
// Default buckets are used when none are provided.
func NewHistogram(opts HistogramOpts) (*Histogram, error) {
	buckets := opts.Buckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
		Buckets:   buckets,
	}, opts.Labels)
	if err := register(opts.Opts, vec); err != nil {
		return nil, fmt.Errorf("failed to register histogram: %w", err)
	}
	return &Histogram{vec: vec}, nil
}

func register(opts Opts, c prometheus.Collector) error {
	if !IsInitialized() {
		return fmt.Errorf("metrics not initialized, call Init() first")
	}
	if err := validateMetricOpts(opts.Namespace, opts.Subsystem, opts.Name, opts.Labels); err != nil {
		return err
	}
	return Registry().Register(c)
}

// Inc increments the counter by 1 for the given label values.
func (c *Counter) Inc(labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Inc()
}

// Add increments the counter by the given non-negative value.
func (c *Counter) Add(value float64, labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Add(value)
}

// WithLabelValues returns a counter for the given label values.
func (c *Counter) WithLabelValues(labelValues ...string) prometheus.Counter {
	return c.vec.WithLabelValues(labelValues...)
}

// Set sets the gauge to the given value for the given label values.
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Set(value)
}

// Inc increments the gauge by 1 for the given label values.
func (g *Gauge) Inc(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Inc()
}

// Dec decrements the gauge by 1 for the given label values.
func (g *Gauge) Dec(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Dec()
}

// WithLabelValues returns a gauge for the given label values.
func (g *Gauge) WithLabelValues(labelValues ...string) prometheus.Gauge {
	return g.vec.WithLabelValues(labelValues...)
}

// Observe adds an observation to the histogram for the given label values.
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.vec.WithLabelValues(labelValues...).Observe(value)
}

// WithLabelValues returns a histogram observer for the given label values.
func (h *Histogram) WithLabelValues(labelValues ...string) prometheus.Observer {
	return h.vec.WithLabelValues(labelValues...)
}

// validateMetricOpts validates metric options according to Prometheus naming conventions.
func validateMetricOpts(namespace, subsystem, name string, labels []string) error {
	parts := make([]string, 0, 3)
	for _, p := range []string{namespace, subsystem, name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	fullName := strings.Join(parts, "_")

	if !validMetricName.MatchString(fullName) {
		return fmt.Errorf("invalid metric name: %s (must match %s)", fullName, validMetricName.String())
	}

	for _, label := range labels {
		if !validLabelName.MatchString(label) {
			return fmt.Errorf("invalid label name: %s (must match %s)", label, validLabelName.String())
		}
		if strings.HasPrefix(label, "__") {
			return fmt.Errorf("label name %s is reserved (starts with __)", label)
		}
	}

	return nil
}
