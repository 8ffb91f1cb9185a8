package ports

import (
	"context"
	"time"
)

// RateLimitStore counts hits against a key inside a fixed window.
// It is cache-backed so verification and activation hot paths never write
// rate state to the primary store.
type RateLimitStore interface {
	// Hit increments the window counter and returns the new count.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	Clear(ctx context.Context, key string) error
}
