// Package logging provides structured logging with zerolog for the vigil
// resilience layer. It supports configurable log levels, output formats
// (JSON/console) and destinations, and carries trace/span IDs from context so
// that executor, poller and scheduler logs correlate with tracing spans.
//
// Example usage:
//
//	cfg := config.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//	logger := logging.New(cfg)
//	logger.Info().Str(logging.Operation, "poll").Msg("operation started")
package logging

// Standard field names for structured logging.
const (
	// TraceID is the field name for distributed trace ID (W3C trace context).
	TraceID = "trace_id"

	// SpanID is the field name for current span ID within a trace.
	SpanID = "span_id"

	// ServiceName is the field name for the service generating the log.
	ServiceName = "service_name"

	// Error is the field name for error information.
	Error = "error"

	// Duration is the field name for operation duration.
	Duration = "duration_ms"

	// Component is the field name for the component/package generating the log.
	Component = "component"

	// Operation is the field name for the name of an executed operation.
	Operation = "operation"

	// Attempt is the field name for a 1-based retry attempt number.
	Attempt = "attempt"

	// Category is the field name for the log category of an executor.
	Category = "category"

	// CacheKey is the field name for a cache key.
	CacheKey = "cache_key"

	// CachePrefix is the field name for an invalidated key prefix.
	CachePrefix = "cache_prefix"

	// EntityType is the field name for the entity type tag of a repository.
	EntityType = "entity_type"

	// SensorCount is the field name for the number of sensors in a poll update.
	SensorCount = "sensor_count"

	// BackupFile is the field name for a backup file name.
	BackupFile = "backup_file"

	// NextRun is the field name for the next scheduled trigger instant.
	NextRun = "next_run"
)
