package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for graceful shutdown.
	// After this timeout, services are forcefully stopped.
	Timeout time.Duration

	// Signals is the list of OS signals that trigger shutdown.
	// If empty, defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// DefaultShutdownConfig returns sensible default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// WaitForShutdown blocks until a shutdown signal is received, then gracefully
// stops the provided services. It handles SIGINT and SIGTERM by default.
//
// Services are stopped in the order provided. If a service fails to stop within
// the timeout, the error is logged but shutdown continues for remaining services.
// Progress is logged through the logger carried by ctx, see logging.WithLogger.
//
// Example:
//
//	httpSvc := service.NewHTTPService("registryd", ":8080", handler)
//	if err := httpSvc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Block until shutdown signal
//	service.WaitForShutdown(ctx, httpSvc)
func WaitForShutdown(ctx context.Context, services ...Service) {
	WaitForShutdownWithConfig(ctx, DefaultShutdownConfig(), services...)
}

// WaitForShutdownWithConfig is like WaitForShutdown but accepts custom shutdown configuration.
//
// Example:
//
//	cfg := service.ShutdownConfig{
//	    Timeout: 60 * time.Second,
//	    Signals: []os.Signal{syscall.SIGTERM},
//	}
//	service.WaitForShutdownWithConfig(ctx, cfg, registrySvc, metricsSvc)
func WaitForShutdownWithConfig(ctx context.Context, cfg ShutdownConfig, services ...Service) {
	logger := logging.FromContext(ctx)

	signals := cfg.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, signals...)

	// Wait for signal
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")

	signal.Stop(quit)

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	for _, svc := range services {
		if err := svc.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("service", svc.Name()).Msg("failed to stop service")
		} else {
			logger.Info().Str("service", svc.Name()).Msg("service stopped")
		}
	}

	logger.Info().Msg("graceful shutdown completed")
}

// CleanupFunc represents a cleanup function to be executed during shutdown.
type CleanupFunc func(context.Context) error

// CleanupHandler manages cleanup functions that should be executed during shutdown.
// Cleanup functions are executed in LIFO order (last registered, first executed).
type CleanupHandler struct {
	cleanups []CleanupFunc
}

// NewCleanupHandler creates a new cleanup handler.
func NewCleanupHandler() *CleanupHandler {
	return &CleanupHandler{
		cleanups: make([]CleanupFunc, 0),
	}
}

// Register adds a cleanup function to be executed during shutdown.
// Cleanup functions are executed in reverse order (LIFO).
//
// Example:
//
//	cleanup := service.NewCleanupHandler()
//	cleanup.Register(func(ctx context.Context) error {
//	    return store.Close()
//	})
//	cleanup.Register(func(ctx context.Context) error {
//	    return client.Close()
//	})
//	defer cleanup.Execute(ctx)
func (h *CleanupHandler) Register(fn CleanupFunc) {
	h.cleanups = append(h.cleanups, fn)
}

// Execute runs all registered cleanup functions in reverse order (LIFO).
// It continues executing cleanup functions even if some fail, logging each
// error and returning the first one encountered.
func (h *CleanupHandler) Execute(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var firstErr error
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		if err := h.cleanups[i](ctx); err != nil {
			logger.Error().Err(err).Msg("cleanup failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// WithShutdownHandler wraps a service with automatic signal-based shutdown.
// It starts the service and blocks until a shutdown signal is received.
//
// Example:
//
//	svc := service.NewHTTPService("registryd", ":8080", handler)
//	if err := service.WithShutdownHandler(ctx, svc); err != nil {
//	    log.Fatal(err)
//	}
func WithShutdownHandler(ctx context.Context, svc Service) error {
	if err := svc.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start service")
	}

	WaitForShutdown(ctx, svc)

	return nil
}
