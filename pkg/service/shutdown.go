package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Combine-Capital/vigil/pkg/logging"
)

// ShutdownConfig configures graceful shutdown.
type ShutdownConfig struct {
	// Timeout bounds how long all services together get to stop.
	Timeout time.Duration

	// Signals trigger shutdown. Default: SIGINT and SIGTERM.
	Signals []os.Signal
}

// DefaultShutdownConfig returns a 30 second timeout on SIGINT and SIGTERM.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// WaitForShutdown blocks until a shutdown signal arrives or ctx is cancelled,
// then stops services in reverse order.
func WaitForShutdown(ctx context.Context, logger *logging.Logger, services ...Service) {
	WaitForShutdownWithConfig(ctx, DefaultShutdownConfig(), logger, services...)
}

// WaitForShutdownWithConfig is WaitForShutdown with explicit settings.
func WaitForShutdownWithConfig(ctx context.Context, cfg ShutdownConfig, logger *logging.Logger, services ...Service) {
	if logger == nil {
		logger = logging.NewNop()
	}
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCtx, stop := signal.NotifyContext(ctx, signals...)
	<-sigCtx.Done()
	stop()
	logger.Info().Msg("shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	StopAll(stopCtx, logger, services...)
	logger.Info().Msg("shutdown completed")
}

// StopAll stops services in reverse order, logging failures and continuing.
// It returns the first error.
func StopAll(ctx context.Context, logger *logging.Logger, services ...Service) error {
	var first error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			logger.Error().Err(err).Str(logging.Component, svc.Name()).Msg("failed to stop service")
			if first == nil {
				first = err
			}
			continue
		}
		logger.Info().Str(logging.Component, svc.Name()).Msg("service stopped")
	}
	return first
}

// CleanupFunc releases a resource during shutdown.
type CleanupFunc func(context.Context) error

// CleanupHandler runs cleanup functions in reverse registration order.
type CleanupHandler struct {
	cleanups []namedCleanup
	logger   *logging.Logger
}

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// NewCleanupHandler creates an empty handler. A nil logger discards output.
func NewCleanupHandler(logger *logging.Logger) *CleanupHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CleanupHandler{logger: logger}
}

// Register adds a cleanup function.
func (h *CleanupHandler) Register(name string, fn CleanupFunc) {
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
}

// Len returns the number of registered functions.
func (h *CleanupHandler) Len() int {
	return len(h.cleanups)
}

// Execute runs every cleanup once, newest first, and returns the first error.
// Later calls do nothing.
func (h *CleanupHandler) Execute(ctx context.Context) error {
	var first error
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		c := h.cleanups[i]
		if err := c.fn(ctx); err != nil {
			h.logger.Error().Err(err).Str(logging.Component, c.name).Msg("cleanup failed")
			if first == nil {
				first = err
			}
		}
	}
	h.cleanups = nil
	return first
}
