package drip

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStoreRequired      = errors.New("drip: schedule store is required")
	ErrResolverRequired   = errors.New("drip: entitlement resolver is required")
	ErrDispatcherRequired = errors.New("drip: dispatcher is required")
	ErrDirectoryRequired  = errors.New("drip: user directory is required")
	ErrMissingUserID      = errors.New("drip: user id is required")
	ErrEntryNotFound      = errors.New("drip: schedule entry not found")
)

// Store persists drip schedule entries.
type Store interface {
	// BulkInsert creates all entries of a fresh schedule in one operation.
	BulkInsert(ctx context.Context, entries []Entry) error

	// ListDue returns pending entries with ScheduledFor <= now, oldest
	// first, up to limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)

	// MarkSent stamps the entry as delivered. Returns ErrEntryNotFound for
	// an unknown id.
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error

	// ListByUser returns all entries for a user in day-offset order.
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}

// UserDirectory resolves a user id to an addressable recipient. The sweep
// runs detached from any request, so it has to look users up itself.
type UserDirectory interface {
	Recipient(ctx context.Context, userID string) (Recipient, error)
}
