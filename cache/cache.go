// Package cache stores cart-read query results so dependent views do not hit
// the backend on every render.
package cache

import (
	"context"
	"errors"
	"fmt"
)

var ErrCacheMiss = errors.New("cache miss")

type QueryCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

// CartKey is the cache key of the GET /cart query for a session.
func CartKey(sessionID string) string {
	return fmt.Sprintf("pos:cart:%s", sessionID)
}
