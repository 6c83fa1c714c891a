// Package cache provides caching for conversion artifacts.
//
// Conversions are deterministic: the same input bytes with the same job
// options always produce the same output. That makes converted artifacts
// and analysis reports ideal cache entries keyed by content hash.
//
// Several backends are provided:
//   - FileCache: directory-backed, for CLI usage
//   - RedisCache: shared cache for server deployments
//   - MongoCache: document-store backed, for deployments already running MongoDB
//   - NullCache: disables caching entirely
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a generic byte-oriented cache.
//
// Implementations must be safe for concurrent use. A miss is reported
// via the bool return, not an error; errors indicate backend failures.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an optional TTL. A zero TTL means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Sentinel errors for caching operations.
var (
	// ErrCacheMiss is returned when an item is not found in cache.
	ErrCacheMiss = errors.New("cache miss")
)
