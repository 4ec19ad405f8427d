// Package store is the key-value backend under the session cache: byte values with a per-key TTL
// and prefix listing.
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is safe for concurrent use. A zero or negative ttl means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists live keys starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	io.Closer
}
