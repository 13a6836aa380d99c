package logging

import (
	"io"
	"os"
	"strings"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/rs/zerolog"
)

// Logger provides structured logging with trace context support.
// It wraps zerolog.Logger so every vigil component logs the same way.
type Logger struct {
	zlog zerolog.Logger
	cfg  config.LogConfig
}

// New creates a new Logger instance from the provided configuration.
// It configures the log level, output format (JSON/console), and output destination.
// Any output other than "stdout" or "stderr" is treated as a file path opened
// for appending; if the file cannot be opened the logger falls back to stdout.
func New(cfg config.LogConfig) *Logger {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		w = os.Stderr
	case "stdout", "":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w = os.Stdout
		} else {
			w = f
		}
	}

	return NewWithWriter(cfg, w)
}

// NewWithWriter creates a Logger that writes to w, honoring the level and
// format settings of cfg. It is mainly used by tests to capture output.
func NewWithWriter(cfg config.LogConfig, w io.Writer) *Logger {
	var logger zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"})
	} else {
		logger = zerolog.New(w)
	}

	logger = logger.With().Timestamp().Logger()
	logger = logger.Level(parseLogLevel(cfg.Level))

	return &Logger{
		zlog: logger,
		cfg:  cfg,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Warn returns a warning level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Fatal returns a fatal level event.
// The application will exit with status 1 after logging the event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With returns a logger context for adding fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// WithComponent returns a new logger with a component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zlog: l.zlog.With().Str(Component, component).Logger(),
		cfg:  l.cfg,
	}
}

// WithServiceName returns a new logger with the service name field set.
func (l *Logger) WithServiceName(serviceName string) *Logger {
	return &Logger{
		zlog: l.zlog.With().Str(ServiceName, serviceName).Logger(),
		cfg:  l.cfg,
	}
}

// WithFields returns a new logger with multiple fields set.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		zlog: ctx.Logger(),
		cfg:  l.cfg,
	}
}

// GetZerolog returns the underlying zerolog.Logger for advanced use cases.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Level returns the current log level.
func (l *Logger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level zerolog.Level) {
	l.zlog = l.zlog.Level(level)
}
