package usage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStoreRequired    = errors.New("usage store is required")
	ErrResolverRequired = errors.New("entitlement resolver is required")
	ErrMissingUserID    = errors.New("user id is required")
)

// Store is the append-only event log backing the usage counter.
type Store interface {
	// Insert appends a new event.
	Insert(ctx context.Context, ev Event) error

	// CountSince returns the number of events for the user created at or
	// after the given instant.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)

	// FirstEventAt returns the creation time of the user's earliest event,
	// or nil when the user has none.
	FirstEventAt(ctx context.Context, userID string) (*time.Time, error)
}
