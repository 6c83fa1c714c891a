// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers can
// register hooks at startup to receive events about conversion jobs and
// cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetConversionHooks(&myConversionHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Conversion().OnDecodeStart(ctx, format, size)
//	// ... do decoding ...
//	observability.Conversion().OnDecodeComplete(ctx, format, vertexCount, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Conversion Hooks
// =============================================================================

// ConversionHooks receives events from the conversion pipeline.
type ConversionHooks interface {
	// Decode events
	OnDecodeStart(ctx context.Context, format string, size int)
	OnDecodeComplete(ctx context.Context, format string, vertexCount int, duration time.Duration, err error)

	// Analysis events
	OnAnalyzeStart(ctx context.Context, faceCount int)
	OnAnalyzeComplete(ctx context.Context, watertight bool, duration time.Duration, err error)

	// Validation events
	OnValidateComplete(ctx context.Context, partType string, valid bool)

	// Encode events
	OnEncodeComplete(ctx context.Context, format string, size int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopConversionHooks is a no-op implementation of ConversionHooks.
type NoopConversionHooks struct{}

func (NoopConversionHooks) OnDecodeStart(context.Context, string, int) {}
func (NoopConversionHooks) OnDecodeComplete(context.Context, string, int, time.Duration, error) {
}
func (NoopConversionHooks) OnAnalyzeStart(context.Context, int)                            {}
func (NoopConversionHooks) OnAnalyzeComplete(context.Context, bool, time.Duration, error)  {}
func (NoopConversionHooks) OnValidateComplete(context.Context, string, bool)               {}
func (NoopConversionHooks) OnEncodeComplete(context.Context, string, int, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	conversionHooks ConversionHooks = NoopConversionHooks{}
	cacheHooks      CacheHooks      = NoopCacheHooks{}
	hooksMu         sync.RWMutex
)

// SetConversionHooks registers custom conversion hooks.
// This should be called once at application startup before any jobs run.
func SetConversionHooks(h ConversionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		conversionHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Conversion returns the registered conversion hooks.
func Conversion() ConversionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return conversionHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	conversionHooks = NoopConversionHooks{}
	cacheHooks = NoopCacheHooks{}
}
