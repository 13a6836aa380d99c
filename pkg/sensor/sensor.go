// Package sensor polls the current sensor set from a Source and delivers an
// Update per sensor to registered callbacks.
//
// The Poller moves through Idle, Running and Stopped. Callbacks run
// synchronously on the polling goroutine in source order; a slow callback
// delays the next cycle, so callbacks that do real work should hand it off.
//
// Example usage:
//
//	p := sensor.NewPoller(source, cfg.Poller, sensor.WithLogger(logger))
//	p.OnUpdate(func(u sensor.Update) {
//	    dashboard.Refresh(u.Sensor)
//	})
//	p.OnError(func(err error) {
//	    alerts.Raise(err)
//	})
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop(context.Background())
package sensor

import "time"

// Entity tags used as cache namespaces and store kinds.
const (
	SensorTag        = "Sensor"
	ConfigurationTag = "SensorConfiguration"
)

// Sensor is a monitored device.
type Sensor struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Location      string         `json:"location"`
	Unit          string         `json:"unit"`
	Enabled       bool           `json:"enabled"`
	LastReadingAt *time.Time     `json:"last_reading_at,omitempty"`
	Configuration *Configuration `json:"configuration,omitempty"`
}

// SensorID returns the identity of s.
func SensorID(s Sensor) int { return s.ID }

// Configuration holds the alerting thresholds of one sensor.
type Configuration struct {
	SensorID          int     `json:"sensor_id"`
	MinThreshold      float64 `json:"min_threshold"`
	MaxThreshold      float64 `json:"max_threshold"`
	SampleRateSeconds int     `json:"sample_rate_seconds"`
	Notes             string  `json:"notes,omitempty"`
}

// ConfigurationID returns the identity of c, which is its sensor's ID.
func ConfigurationID(c Configuration) int { return c.SensorID }

// Update is delivered once per sensor per successful poll cycle.
type Update struct {
	Sensor        Sensor
	LastReadingAt *time.Time
	ObservedAt    time.Time
}
