// Package webhook verifies payment-provider webhooks and reconciles them
// into subscription records and outbound notifications.
package webhook

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSignatureVerification = errors.New("webhook: signature verification failed")
	ErrMalformedPayload      = errors.New("webhook: malformed payload")
	ErrUserNotResolved       = errors.New("webhook: could not resolve user for event")
	ErrInvalidConfig         = errors.New("webhook: invalid configuration")
	ErrStoreRequired         = errors.New("webhook: store is required")
	ErrClassifierRequired    = errors.New("webhook: classifier is required")
	ErrDispatcherRequired    = errors.New("webhook: dispatcher is required")
)

// EventType is the provider-agnostic event classification.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout_completed"
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionDeleted  EventType = "subscription_deleted"
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
	EventCustomerCreated      EventType = "customer_created"
	EventPaymentIntentSettled EventType = "payment_intent_settled"
	EventUnknown              EventType = "unknown"
)

// Checkout modes carried by EventCheckoutCompleted.
const (
	ModeSubscription = "subscription"
	ModeOneTime      = "one_time"
)

// WebhookEvent is a normalized payment-provider event. Fields are populated
// best-effort; reconciliation decides per event type which ones it needs.
type WebhookEvent struct {
	Type           EventType
	ProviderEvent  string
	EventID        string
	SubscriptionID string
	CustomerID     string // provider's customer id
	UserID         string // internal user id from checkout metadata
	Status         string
	PriceID        string
	InvoiceID      string
	Amount         string // formatted, e.g. "USD 29.00"
	Mode           string // subscription or one_time checkout
	Email          string // best-effort receipt email
	Reason         string // failure detail for payment failures
	PeriodEnd      *time.Time
	OccurredAt     time.Time
	Raw            map[string]any
}

// BillingProvider verifies and normalizes inbound payment webhooks. Hosted
// checkout and portal sessions stay with the provider; this service only
// consumes its event feed.
type BillingProvider interface {
	// ParseWebhook validates the signature and normalizes the payload.
	// A signature failure returns ErrSignatureVerification before any
	// payload inspection happens.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
