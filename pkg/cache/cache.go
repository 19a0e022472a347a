// Package cache provides Redis caching with JSON serialization for peerreg
// infrastructure. It supports storing and retrieving snapshot documents with
// configurable TTL, cache-aside patterns, and health checking. The registry
// uses it to persist discovery snapshots that survive local store outages.
//
// Example usage:
//
//	cfg := config.CacheConfig{
//	    Host: "localhost",
//	    Port: 6379,
//	    DB:   0,
//	}
//
//	c, err := cache.NewRedis(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	// Store a snapshot document
//	snap := registry.Snapshot{Services: services, TakenAt: time.Now()}
//	err = c.Set(ctx, "peerreg:snapshot", snap, 10*time.Minute)
//
//	// Retrieve the snapshot
//	var retrieved registry.Snapshot
//	err = c.Get(ctx, "peerreg:snapshot", &retrieved)
//
//	// Use cache-aside pattern
//	key := cache.Key("service", name, env)
//	err = c.GetOrLoad(ctx, key, &svc, 5*time.Minute, func(ctx context.Context) (any, error) {
//	    return store.Get(ctx, name)
//	})
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache operations with JSON document support.
// All methods respect context cancellation and timeout.
type Cache interface {
	// Get retrieves a cached document by key and unmarshals it into dest.
	// Returns an error if the key doesn't exist or deserialization fails.
	// The dest parameter must be a pointer.
	Get(ctx context.Context, key string, dest any) error

	// Set stores a document in the cache with the specified TTL.
	// The value is serialized to JSON before storage.
	// A TTL of 0 means no expiration.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	// Returns true if the key exists, false otherwise.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrLoad retrieves a value from cache, or loads it using the provided loader function if not found.
	// The loaded value is automatically cached with the specified TTL.
	// This implements the cache-aside pattern.
	GetOrLoad(ctx context.Context, key string, dest any, ttl time.Duration, loader func(context.Context) (any, error)) error

	// CheckHealth verifies cache connectivity and returns an error if unavailable.
	CheckHealth(ctx context.Context) error

	// Close releases all resources associated with the cache.
	Close() error
}
