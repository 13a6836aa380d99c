// Package service runs vigil's long-lived components under one lifecycle: the
// sensor poller, the backup scheduler and the ops HTTP server all implement
// Service.
//
// Example usage:
//
//	b, err := service.NewBootstrap(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Cleanup(context.Background())
//
//	ops := service.NewHTTPService("ops", ":8080", service.OpsHandler(b.Health, cfg.Metrics))
//	if err := ops.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	service.WaitForShutdown(ctx, b.Logger, ops)
package service

import "context"

// Service is a component that can be started, stopped and health-checked.
type Service interface {
	// Start begins the service and returns once it is running. Long-running
	// work continues in the background until Stop or until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop ends the service. The ctx deadline bounds how long Stop waits for
	// in-flight work.
	Stop(ctx context.Context) error

	// Name identifies the service in logs and health results.
	Name() string

	// Health returns nil while the service is working normally.
	Health() error
}
