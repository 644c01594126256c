package billing

import "context"

// Store defines subscription record persistence. Implementations must return
// records in stable creation order; the resolver's tie-break rules depend on
// it.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec Record) error

	// ListByUser returns all records for a user ordered by creation time.
	ListByUser(ctx context.Context, userID string) ([]Record, error)

	// GetBySubscriptionID returns the record with the given external
	// subscription id, or ErrRecordNotFound.
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error)

	// Upsert updates the record matching (SubscriptionID, UserID) or inserts
	// a new one when absent.
	Upsert(ctx context.Context, rec Record) error

	// DeleteBySubscriptionID removes the record with the given external
	// subscription id. Deleting a missing record is a no-op.
	DeleteBySubscriptionID(ctx context.Context, subscriptionID string) error

	// DeleteFreeByUser removes the synthetic free record for a user, if any.
	DeleteFreeByUser(ctx context.Context, userID string) error
}

// ValidateRecord checks the identifiers every write path depends on. Both
// store implementations call it before persisting: an empty subscription id
// would make the record unreachable for Upsert and Delete.
func ValidateRecord(rec Record) error {
	if rec.UserID == "" {
		return ErrMissingUserID
	}
	if rec.SubscriptionID == "" {
		return ErrMissingSubscriptionID
	}
	return nil
}
