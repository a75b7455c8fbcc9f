// Package cache provides the small counter abstraction used for abuse
// tracking. Deployments with Redis enabled count across instances; the
// in-memory fallback keeps single-instance deployments and tests
// working without one.
package cache

import (
	"context"
	"time"
)

// Counter tracks short-lived per-key event counts
type Counter interface {
	// Incr increments key and returns the new count. The first
	// increment arms the key's expiry; later increments do not extend
	// it, so a burst cannot keep its own window alive.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current count for key, zero if absent or expired
	Get(ctx context.Context, key string) (int64, error)
}
