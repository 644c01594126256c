package user

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound         = errors.New("user: not found")
	ErrStoreRequired        = errors.New("user: store is required")
	ErrBillingStoreRequired = errors.New("user: subscription store is required")
	ErrDispatcherRequired   = errors.New("user: dispatcher is required")
	ErrDripRequired         = errors.New("user: drip service is required")
	ErrInvalidEvent         = errors.New("user: invalid event")
)

// Store persists the local user mirror. Deleting a user cascades to
// subscriptions, usage events and drip entries at the storage layer.
type Store interface {
	// Upsert inserts the user or updates email/name for an existing id.
	Upsert(ctx context.Context, u User) error

	// GetByID returns ErrUserNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByCustomerID resolves a payment-provider customer id to the
	// linked user. Returns ErrUserNotFound when no link exists.
	GetByCustomerID(ctx context.Context, customerID string) (*User, error)

	// LinkCustomer records the payment-provider customer id for a user.
	// Linking the same pair again is a no-op.
	LinkCustomer(ctx context.Context, userID, customerID string) error

	// Delete removes the user. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error
}
