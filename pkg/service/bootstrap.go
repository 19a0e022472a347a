package service

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
	"github.com/gridhouse/peerreg/pkg/metrics"
	"github.com/gridhouse/peerreg/pkg/tracing"
)

// Bootstrap holds the initialized observability components of a process.
type Bootstrap struct {
	Config         *config.Config
	Logger         *logging.Logger
	TracerProvider *sdktrace.TracerProvider
	cleanup        []func(context.Context) error
}

// BootstrapOption is a functional option for configuring bootstrap behavior.
type BootstrapOption func(*bootstrapConfig)

type bootstrapConfig struct {
	skipMetrics bool
	skipTracing bool
	skipLogger  bool
}

// WithoutMetrics disables metrics initialization during bootstrap.
func WithoutMetrics() BootstrapOption {
	return func(c *bootstrapConfig) {
		c.skipMetrics = true
	}
}

// WithoutTracing disables tracing initialization during bootstrap.
func WithoutTracing() BootstrapOption {
	return func(c *bootstrapConfig) {
		c.skipTracing = true
	}
}

// WithoutLogger disables logger initialization during bootstrap.
// This is rarely needed but can be useful for testing.
func WithoutLogger() BootstrapOption {
	return func(c *bootstrapConfig) {
		c.skipLogger = true
	}
}

// NewBootstrap initializes logging, metrics and tracing from configuration,
// in that order. The registry collectors are registered alongside the
// metrics endpoint so resolver counters work out of the box.
//
// Example:
//
//	cfg := config.MustLoad("config.yaml", "PEERREG")
//	bootstrap, err := service.NewBootstrap(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bootstrap.Cleanup(ctx)
func NewBootstrap(ctx context.Context, cfg *config.Config, opts ...BootstrapOption) (*Bootstrap, error) {
	bc := &bootstrapConfig{}
	for _, opt := range opts {
		opt(bc)
	}

	b := &Bootstrap{
		Config:  cfg,
		cleanup: make([]func(context.Context) error, 0),
	}

	if !bc.skipLogger {
		logger := logging.New(cfg.Log)
		b.Logger = logger
		logger.Info().
			Str("service", cfg.Service.Name).
			Str("version", cfg.Service.Version).
			Str(logging.Environment, cfg.Service.Environment).
			Msg("Service starting")
	}

	if !bc.skipMetrics && cfg.Metrics.Enabled {
		metricsConfig := metrics.MetricsConfig{
			Enabled:   cfg.Metrics.Enabled,
			Port:      cfg.Metrics.Port,
			Path:      cfg.Metrics.Path,
			Namespace: cfg.Metrics.Namespace,
		}
		if err := metrics.Init(metricsConfig); err != nil {
			return nil, errors.Wrap(err, "failed to initialize metrics")
		}
		b.cleanup = append(b.cleanup, metrics.Shutdown)

		if err := metrics.InitRegistryMetrics(cfg.Metrics.Namespace); err != nil {
			_ = b.Cleanup(ctx)
			return nil, errors.Wrap(err, "failed to initialize registry metrics")
		}

		if b.Logger != nil {
			b.Logger.Info().
				Int("port", cfg.Metrics.Port).
				Str("path", cfg.Metrics.Path).
				Msg("Metrics initialized")
		}
	}

	if !bc.skipTracing && cfg.Tracing.Enabled {
		serviceName := cfg.Service.Name
		if cfg.Tracing.ServiceName != "" {
			serviceName = cfg.Tracing.ServiceName
		}

		tracerProvider, shutdown, err := tracing.NewTracerProvider(ctx, cfg.Tracing, serviceName)
		if err != nil {
			// Cleanup already initialized components
			_ = b.Cleanup(ctx)
			return nil, errors.Wrap(err, "failed to initialize tracing")
		}
		b.TracerProvider = tracerProvider
		b.cleanup = append(b.cleanup, shutdown)

		if b.Logger != nil {
			b.Logger.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	}

	return b, nil
}

// Cleanup shuts down all initialized components in reverse order.
// Always defer this after creating a Bootstrap.
func (b *Bootstrap) Cleanup(ctx context.Context) error {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](ctx); err != nil {
			if b.Logger != nil {
				b.Logger.Error().Err(err).Msg("Cleanup error")
			}
			// Continue with other cleanup operations
		}
	}

	if b.Logger != nil {
		b.Logger.Info().Msg("Cleanup completed")
	}

	return nil
}

// AddCleanup adds a cleanup function to be executed during Cleanup.
// Cleanup functions run in reverse order (LIFO).
//
// Example:
//
//	bootstrap.AddCleanup(func(ctx context.Context) error {
//	    return pool.Close()
//	})
func (b *Bootstrap) AddCleanup(fn func(context.Context) error) {
	b.cleanup = append(b.cleanup, fn)
}
