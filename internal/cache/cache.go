// Package cache provides a small key/value store with per-entry expiry.
// The Redis backend is shared across server instances; the in-memory
// backend serves single-process development setups and tests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache stores string values with a TTL per entry. Set overwrites any
// existing value for the key and restarts its TTL.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	// Incr adds one to the integer under key and returns the new value. A
	// missing key starts at zero and expires after ttl; an existing key
	// keeps its expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
