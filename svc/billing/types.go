package billing

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies a subscription level. The zero-value semantics of the
// system always degrade toward TierFree.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"

	// TierTest is an internal QA pseudo-tier. It is structurally excluded
	// from persistence and usage counting rather than special-cased by
	// string comparison at call sites.
	TierTest Tier = "test"
)

// Rank orders tiers for precedence resolution: pro beats starter beats free.
// TierTest never wins a precedence contest.
func (t Tier) Rank() int {
	switch t {
	case TierPro:
		return 2
	case TierStarter:
		return 1
	default:
		return 0
	}
}

// Paid reports whether the tier represents a paying subscription.
func (t Tier) Paid() bool {
	return t == TierStarter || t == TierPro
}

// Persistable reports whether generation events for this tier are recorded.
// Only the internal test tier is excluded.
func (t Tier) Persistable() bool {
	return t != TierTest
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierTest:
		return true
	}
	return false
}

// AllTiers lists every tier the plan catalog must configure.
var AllTiers = []Tier{TierFree, TierStarter, TierPro, TierTest}

// Status is the subscription status as reported by the payment provider.
// It is free text on the wire; only the two values below grant access.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
	StatusPastDue    Status = "past_due"
)

// ActiveOrTrialing reports whether the status grants entitlement.
func (s Status) ActiveOrTrialing() bool {
	return s == StatusActive || s == StatusTrialing
}

const (
	// FreePriceID is the reserved sentinel price identifier for free records.
	FreePriceID = "free"

	// FreeSubscriptionID is the synthetic external subscription id used for
	// auto-created free records, which have no provider-side counterpart.
	FreeSubscriptionID = "sub_free"
)

// Record is one subscription row for a user. A user may hold several records
// at once (free plus paid, or historical leftovers); precedence is resolved
// at read time, never by deleting racing writers.
type Record struct {
	ID               uuid.UUID
	UserID           string
	CustomerID       string // provider customer id, may be empty
	SubscriptionID   string // provider subscription id, FreeSubscriptionID for free records
	PriceID          string // empty or FreePriceID classifies as free
	Status           Status
	CurrentPeriodEnd *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsFree reports whether this is the synthetic free record.
func (r Record) IsFree() bool {
	return r.SubscriptionID == FreeSubscriptionID
}

// NewFreeRecord builds the synthetic free subscription for a user.
func NewFreeRecord(userID string, now time.Time) Record {
	return Record{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: FreeSubscriptionID,
		PriceID:        FreePriceID,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
