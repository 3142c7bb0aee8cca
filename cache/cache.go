package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 60 * time.Second

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Invalidator is the write-side signal: drop every key containing pattern.
// Callers treat failures as best-effort.
type Invalidator interface {
	InvalidatePattern(ctx context.Context, pattern string) error
}

// Cache is a byte-oriented response cache.
type Cache interface {
	Invalidator
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key prefixes shared by readers and writers.
const (
	OrdersPrefix = "orders:"
)

// OrderPrefix returns the pattern covering every cached view of one order.
func OrderPrefix(orderID uint) string {
	return "order:" + strconv.FormatUint(uint64(orderID), 10) + ":"
}
