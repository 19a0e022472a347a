package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
	"github.com/gridhouse/peerreg/pkg/metrics"
	"github.com/gridhouse/peerreg/pkg/retry"
)

// WithRetry wraps a handler with retry logic for backend-down errors.
// It will retry the handler up to maxAttempts times with exponential backoff.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithRetry(3, time.Second))
func WithRetry(maxAttempts int, initialDelay time.Duration) SubscribeOption {
	return func(opts *subscribeOptions) {
		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) error {
				cfg := retry.Config{
					MaxAttempts:  uint(maxAttempts),
					InitialDelay: initialDelay,
					MaxDelay:     30 * time.Second,
					Multiplier:   2.0,
					Policy:       retry.PolicyBackend,
				}

				return retry.Do(ctx, cfg, func() error {
					return next(ctx, evt)
				})
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}

// WithLogging wraps a handler with logging for event processing.
// It logs the start and end of event processing, including any errors.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithLogging(logger))
func WithLogging(logger *logging.Logger) SubscribeOption {
	return func(opts *subscribeOptions) {
		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) error {
				logger.Info().
					Str("event_type", evt.Type).
					Str("service_name", evt.ServiceName).
					Msg("processing event")

				err := next(ctx, evt)

				if err != nil {
					logger.Error().
						Err(err).
						Str("event_type", evt.Type).
						Str("service_name", evt.ServiceName).
						Msg("event processing failed")
				} else {
					logger.Debug().
						Str("event_type", evt.Type).
						Msg("event processed successfully")
				}

				return err
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}

// WithMetrics wraps a handler with metrics collection.
// It records the duration and outcome (success/failure) of event processing.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithMetrics("peerreg"))
func WithMetrics(namespace string) SubscribeOption {
	return func(opts *subscribeOptions) {
		duration, err := metrics.NewHistogram(metrics.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "event_processing_seconds",
			Help:      "Duration of event handler execution in seconds",
			Labels:    []string{"event_type", "outcome"},
		})
		if err != nil {
			// If metrics fail to initialize, skip metrics collection so the
			// subscription still works
			return
		}

		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) error {
				start := time.Now()
				err := next(ctx, evt)

				outcome := "success"
				if err != nil {
					outcome = "error"
				}
				duration.Observe(time.Since(start).Seconds(), evt.Type, outcome)

				return err
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}

// WithErrorHandler wraps a handler with custom error handling.
// The errorHandler is invoked when the wrapped handler returns an error.
// If errorHandler returns nil, the error is considered handled and won't propagate.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithErrorHandler(func(ctx context.Context, evt *bus.Event, err error) error {
//	    if errors.IsNotFound(err) {
//	        // Ignore not found errors
//	        return nil
//	    }
//	    return err
//	}))
func WithErrorHandler(errorHandler func(context.Context, *Event, error) error) SubscribeOption {
	return func(opts *subscribeOptions) {
		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) error {
				err := next(ctx, evt)
				if err != nil {
					return errorHandler(ctx, evt, err)
				}
				return nil
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}

// WithRecovery wraps a handler with panic recovery.
// If the handler panics, the panic is caught and converted to an error.
// The error is deliberately unclassified so retry middleware won't replay
// a panicking handler.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithRecovery())
func WithRecovery() SubscribeOption {
	return func(opts *subscribeOptions) {
		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("handler panicked: %v", r)
					}
				}()
				return next(ctx, evt)
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}

// WithTimeout wraps a handler with a timeout.
// If the handler doesn't complete within the specified duration, it returns a timeout error.
//
// Example:
//
//	b.Subscribe(ctx, topic, handler, bus.WithTimeout(30*time.Second))
func WithTimeout(timeout time.Duration) SubscribeOption {
	return func(opts *subscribeOptions) {
		middleware := func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, evt *Event) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				done := make(chan error, 1)
				go func() {
					done <- next(ctx, evt)
				}()

				select {
				case err := <-done:
					return err
				case <-ctx.Done():
					return errors.NewTransient("handler timeout exceeded", ctx.Err())
				}
			}
		}
		opts.middlewares = append(opts.middlewares, middleware)
	}
}
