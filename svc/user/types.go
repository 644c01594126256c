// Package user mirrors accounts from the external auth provider and runs
// the onboarding side effects of account creation.
package user

import "time"

// User is the local mirror of an auth-provider account. The auth provider
// owns identity; this row exists so entitlement, usage and mail can join
// against a local key, and so a payment-provider customer id can be linked
// to it.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is an inbound auth-provider webhook event.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the user payload carried by auth-provider events.
type EventData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Auth-provider event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)
