// Package ratelimit implements a fixed-window request limiter with pluggable
// storage backends. It protects bursty endpoints independently of any
// business-level quota accounting.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

var (
	ErrLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidLimit    = errors.New("invalid limit")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrKeyRequired     = errors.New("key is required")
	ErrStoreRequired   = errors.New("store is required")
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store is the storage backend for window counters.
type Store interface {
	// IncrementAndGet atomically increments the counter for the key and
	// returns the new value along with the remaining window TTL. The first
	// increment in a window starts the TTL.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (current int64, ttl time.Duration, err error)

	// Delete removes the given key from the store.
	Delete(ctx context.Context, key string) error
}

// KeyFunc extracts a rate-limit key from an HTTP request.
type KeyFunc func(*http.Request) string

// ByClientIP keys requests by the caller's IP address.
func ByClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
