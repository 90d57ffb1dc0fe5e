// Package cache defines the byte cache used for remote layer payloads.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// PatternDeleter is implemented by backends that can drop keys by glob.
type PatternDeleter interface {
	DelPattern(ctx context.Context, pattern string) (int, error)
}
