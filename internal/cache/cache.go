// Package cache provides a key/value store abstraction with in-memory and
// Redis backends, and the generation cache built on it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentgate/config"
)

// Store is a byte-oriented key/value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrDisabled is returned by New when caching is turned off.
var ErrDisabled = errors.New("cache disabled")

// New creates the store selected by cfg.Type. It returns ErrDisabled for "none".
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, ErrDisabled
	case "local":
		return NewLocalStore(), nil
	case "redis":
		return NewRedisStore(RedisConfig{URL: cfg.Redis.URL, KeyPrefix: cfg.Redis.KeyPrefix})
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
