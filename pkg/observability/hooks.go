// Package observability provides hooks for metrics, tracing, and logging.
//
// Instrumentation is optional and backend-agnostic: consumers register hooks
// at startup and the engine, cache and HTTP server emit events through them.
// Defaults are no-ops.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetMorphHooks(&myMorphHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Morph().OnSolveStart(ctx, "exact", 4096)
//	// ... solve ...
//	observability.Morph().OnSolveComplete(ctx, "exact", cost, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Morph Hooks
// =============================================================================

// MorphHooks receives events from the morph engine.
type MorphHooks interface {
	// Solve events
	OnSolveStart(ctx context.Context, algorithm string, cells int)
	OnSolveComplete(ctx context.Context, algorithm string, cost float64, duration time.Duration, err error)

	// OnFrame records one rendered frame.
	OnFrame(ctx context.Context, frame, settled int, duration time.Duration)

	// OnCancel records a cancelled or superseded morph.
	OnCancel(ctx context.Context, id string)
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
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP server.
type HTTPHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, route string)

	// OnResponse records a completed response.
	OnResponse(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopMorphHooks is a no-op implementation of MorphHooks.
type NoopMorphHooks struct{}

func (NoopMorphHooks) OnSolveStart(context.Context, string, int) {}
func (NoopMorphHooks) OnSolveComplete(context.Context, string, float64, time.Duration, error) {
}
func (NoopMorphHooks) OnFrame(context.Context, int, int, time.Duration) {}
func (NoopMorphHooks) OnCancel(context.Context, string)                 {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                         {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	morphHooks MorphHooks = NoopMorphHooks{}
	cacheHooks CacheHooks = NoopCacheHooks{}
	httpHooks  HTTPHooks  = NoopHTTPHooks{}
	hooksMu    sync.RWMutex
)

// SetMorphHooks registers custom morph hooks.
// This should be called once at application startup before any morph starts.
func SetMorphHooks(h MorphHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		morphHooks = h
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

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Morph returns the registered morph hooks.
func Morph() MorphHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return morphHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	morphHooks = NoopMorphHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
