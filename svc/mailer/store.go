package mailer

import (
	"context"
	"time"
)

// LedgerEntry records a single notification dispatch attempt. The Key is the
// deduplication identity: two entries with the same key represent the same
// logical notification, and the store enforces at most one row per key.
type LedgerEntry struct {
	Key       string
	UserID    string
	Recipient string
	Template  string
	Meta      map[string]string
	CreatedAt time.Time
}

// LedgerStore persists notification ledger entries. Reservation-style
// semantics: Reserve inserts the entry before any dispatch happens, so a
// concurrent duplicate loses the race at the storage layer rather than after
// two emails went out.
type LedgerStore interface {
	// Reserve inserts the entry. Returns false with a nil error when an
	// entry with the same key already exists.
	Reserve(ctx context.Context, entry LedgerEntry) (bool, error)

	// Release removes a reserved entry after a failed dispatch so a later
	// retry of the same logical notification can go through. Removing a
	// missing key is a no-op.
	Release(ctx context.Context, key string) error

	// Exists reports whether an entry with the key is recorded.
	Exists(ctx context.Context, key string) (bool, error)
}
