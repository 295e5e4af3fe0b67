package cache

import (
	"context"
	"time"
)

// Cache is the contract for the short-TTL stores the engine and validator
// lean on. Implementations: Redis (production) and the in-memory TTL store
// (monitor dedup, tests).
type Cache interface {
	// Get reads a key and unmarshals it into dest.
	// found = false means cache miss; dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores a value under key with the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys from the cache.
	Delete(ctx context.Context, keys ...string) error

	// Increment atomically bumps a counter key and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire (re)sets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
