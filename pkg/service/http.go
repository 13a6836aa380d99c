package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/health"
	"github.com/Combine-Capital/vigil/pkg/logging"
	"github.com/Combine-Capital/vigil/pkg/metrics"
	"github.com/Combine-Capital/vigil/pkg/tracing"
)

// HTTPService serves an http.Handler as a Service.
type HTTPService struct {
	name            string
	addr            string
	handler         http.Handler
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	maxHeaderBytes  int
	logger          *logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	serveErr error
}

var _ Service = (*HTTPService)(nil)

// HTTPServiceOption configures an HTTPService.
type HTTPServiceOption func(*HTTPService)

// WithReadTimeout sets the server read timeout.
func WithReadTimeout(timeout time.Duration) HTTPServiceOption {
	return func(s *HTTPService) {
		s.readTimeout = timeout
	}
}

// WithWriteTimeout sets the server write timeout.
func WithWriteTimeout(timeout time.Duration) HTTPServiceOption {
	return func(s *HTTPService) {
		s.writeTimeout = timeout
	}
}

// WithShutdownTimeout bounds Stop when its context has no deadline.
func WithShutdownTimeout(timeout time.Duration) HTTPServiceOption {
	return func(s *HTTPService) {
		s.shutdownTimeout = timeout
	}
}

// WithMaxHeaderBytes sets the maximum request header size.
func WithMaxHeaderBytes(bytes int) HTTPServiceOption {
	return func(s *HTTPService) {
		s.maxHeaderBytes = bytes
	}
}

// WithHTTPLogger sets the logger for server lifecycle events.
func WithHTTPLogger(l *logging.Logger) HTTPServiceOption {
	return func(s *HTTPService) {
		s.logger = l
	}
}

// NewHTTPService creates a stopped HTTP service listening on addr.
func NewHTTPService(name, addr string, handler http.Handler, opts ...HTTPServiceOption) *HTTPService {
	s := &HTTPService{
		name:            name,
		addr:            addr,
		handler:         handler,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 30 * time.Second,
		maxHeaderBytes:  1 << 20,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHTTPServiceFromConfig creates the ops HTTP service from server settings.
func NewHTTPServiceFromConfig(name string, cfg config.ServerConfig, handler http.Handler, logger *logging.Logger) *HTTPService {
	return NewHTTPService(name, fmt.Sprintf(":%d", cfg.HTTPPort), handler,
		WithReadTimeout(cfg.ReadTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithMaxHeaderBytes(cfg.MaxHeaderBytes),
		WithHTTPLogger(logger),
	)
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *HTTPService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("service %s already started", s.name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP service %s: %w", s.name, err)
	}

	srv := &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.readTimeout,
		WriteTimeout:   s.writeTimeout,
		MaxHeaderBytes: s.maxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.server = srv
	s.listener = ln
	s.serveErr = nil

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Str(logging.Component, s.name).Msg("HTTP service failed")
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()

	s.logger.Info().Str(logging.Component, s.name).Str("addr", ln.Addr().String()).Msg("HTTP service listening")
	return nil
}

// Stop shuts the server down gracefully. Stopping a stopped service does nothing.
func (s *HTTPService) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP service %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	return nil
}

// Name returns the service name.
func (s *HTTPService) Name() string {
	return s.name
}

// Addr returns the bound address, or "" when stopped.
func (s *HTTPService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Health reports an error when the server is not serving.
func (s *HTTPService) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serveErr != nil {
		return fmt.Errorf("service %s failed: %w", s.name, s.serveErr)
	}
	if s.server == nil {
		return fmt.Errorf("service %s not running", s.name)
	}
	return nil
}

// OpsHandler serves the health probes and, when enabled, the Prometheus
// metrics. Every request is traced.
func OpsHandler(h *health.Health, cfg config.MetricsConfig) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", h.HealthHandler())
	mux.Handle("/health/live", h.LivenessHandler())
	mux.Handle("/health/ready", h.ReadinessHandler())

	if cfg.Enabled && metrics.IsInitialized() {
		path := cfg.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.Handler())
	}
	return tracing.HTTPMiddleware(mux)
}
