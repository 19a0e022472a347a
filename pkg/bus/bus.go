// Package bus provides publish/subscribe messaging for registry lifecycle events.
// It supports multiple backends: in-memory for testing and NATS JetStream for production.
//
// Example usage with in-memory backend:
//
//	b := bus.NewMemory()
//	defer b.Close()
//
//	// Publish an event
//	evt := bus.NewServiceRegistered("collector", "production", "http://10.0.0.5:8080")
//	err := b.Publish(ctx, bus.TopicName(bus.EventServiceRegistered), evt)
//
//	// Subscribe to events
//	err = b.Subscribe(ctx, bus.TopicName(bus.EventServiceRegistered),
//	    func(ctx context.Context, evt *bus.Event) error {
//	        return announcePeer(ctx, evt.ServiceName, evt.Endpoint)
//	    },
//	)
//
// Example usage with NATS JetStream:
//
//	cfg := config.EventBusConfig{
//	    Backend:    "jetstream",
//	    Servers:    []string{"nats://localhost:4222"},
//	    StreamName: "peerreg_events",
//	}
//
//	b, err := bus.NewJetStream(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	// Use middleware for automatic retry and logging
//	err = b.Subscribe(ctx, bus.TopicName(bus.EventHeartbeatMissed),
//	    handler,
//	    bus.WithRetry(3, time.Second),
//	    bus.WithLogging(logger),
//	)
package bus

import (
	"context"
)

// EventBus defines the interface for publishing and subscribing to registry events.
// All methods respect context cancellation and timeout.
type EventBus interface {
	// Publish sends an event to the specified topic.
	// The event is serialized to JSON before transmission.
	// Returns an error if serialization or publishing fails.
	Publish(ctx context.Context, topic string, event *Event) error

	// Subscribe registers a handler for events on the specified topic.
	// The handler is invoked for each event received on the topic.
	// Events are automatically deserialized before handler invocation.
	// Middleware options can be applied to wrap the handler with retry, logging, metrics, etc.
	// Returns an error if subscription fails.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, options ...SubscribeOption) error

	// Close releases all resources and gracefully shuts down the event bus.
	// This flushes any pending messages and closes connections.
	Close() error
}

// HandlerFunc is the function signature for event handlers.
// Handlers receive the deserialized event and must return an error if processing
// fails. Returning a transient or unavailable error triggers redelivery when the
// backend supports it.
type HandlerFunc func(ctx context.Context, event *Event) error

// SubscribeOption is a function that modifies subscription behavior.
// Options can add middleware like retry, logging, and metrics to the handler.
type SubscribeOption func(*subscribeOptions)

// subscribeOptions holds the configuration for a subscription.
type subscribeOptions struct {
	middlewares []Middleware
}

// Middleware wraps a HandlerFunc to add cross-cutting concerns like retry, logging, and metrics.
type Middleware func(HandlerFunc) HandlerFunc

// applyMiddleware applies all middleware to the handler in reverse order
// so that the first middleware added is the outermost wrapper.
func applyMiddleware(handler HandlerFunc, middlewares []Middleware) HandlerFunc {
	// Apply in reverse order so first added middleware is outermost
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// buildOptions constructs subscribeOptions from the provided SubscribeOption functions.
func buildOptions(opts []SubscribeOption) *subscribeOptions {
	options := &subscribeOptions{
		middlewares: make([]Middleware, 0),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
