// Package cache stores solved assignments between morphs.
//
// Solving is the only expensive setup stage of a morph, and the same pair of
// images is typically morphed many times (replays, reverse playback, a UI
// re-requesting frames). The engine therefore caches solver results keyed by
// a hash of both grids and every parameter that affects the assignment.
//
// Three backends are provided:
//   - [FileCache]: one JSON file per entry, for the CLI
//   - [RedisCache]: shared cache for multi-instance servers
//   - [NullCache]: disables caching
//
// Keys are produced by a [Keyer], so namespaces can be added without
// touching callers.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key. A miss is reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// DefaultTTL is the lifetime of cached assignments.
const DefaultTTL = 30 * 24 * time.Hour
