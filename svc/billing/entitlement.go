package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/launchpilot/launchpilot/pkg/logger"
)

// Entitlement is the resolved, point-in-time access of a user. It is derived
// on every call and never cached beyond a single request.
type Entitlement struct {
	Tier      Tier
	IsActive  bool
	IsPaid    bool
	Canonical *Record
	Records   []Record
	Plan      Plan
}

// Resolver turns a user's subscription records into a single authoritative
// entitlement.
type Resolver struct {
	store      Store
	classifier *Classifier
	catalog    Catalog
	log        *slog.Logger
}

// NewResolver creates an entitlement resolver. The catalog is validated up
// front so Resolve can index it without a fallback path.
func NewResolver(store Store, classifier *Classifier, catalog Catalog, log *slog.Logger) (*Resolver, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if err := ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, classifier: classifier, catalog: catalog, log: log}, nil
}

// Resolve loads all records for the user and applies precedence rules.
//
// A storage failure never propagates: gating decisions fall back to an
// inactive free entitlement so a transient outage can only reduce access,
// never widen it. The failure is logged at error level because it silently
// downgrades paying users and has to be investigated.
func (r *Resolver) Resolve(ctx context.Context, userID string) Entitlement {
	records, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		r.log.ErrorContext(ctx, "entitlement resolution degraded to free tier",
			logger.UserID(userID),
			logger.Error(errors.Join(ErrFailedToLoadRecords, err)))
		return r.safeDefault()
	}
	return r.resolve(records)
}

func (r *Resolver) resolve(records []Record) Entitlement {
	var activeOrTrialing []Record
	for _, rec := range records {
		if rec.Status.ActiveOrTrialing() {
			activeOrTrialing = append(activeOrTrialing, rec)
		}
	}

	ent := Entitlement{
		Tier:     TierFree,
		IsActive: len(activeOrTrialing) > 0,
		Records:  records,
	}

	// Highest-ranked paid record wins; ties break by first-seen order, which
	// the store guarantees is creation order.
	var paid *Record
	for i := range activeOrTrialing {
		rec := &activeOrTrialing[i]
		tier := r.classifier.Classify(rec.PriceID)
		if !tier.Paid() {
			continue
		}
		if paid == nil || tier.Rank() > r.classifier.Classify(paid.PriceID).Rank() {
			paid = rec
		}
	}

	switch {
	case paid != nil:
		ent.Tier = r.classifier.Classify(paid.PriceID)
		ent.IsPaid = true
		ent.Canonical = paid
	case len(activeOrTrialing) > 0:
		ent.Canonical = &activeOrTrialing[0]
		ent.Tier = r.classifier.Classify(activeOrTrialing[0].PriceID)
	default:
		for i := range records {
			if r.classifier.Classify(records[i].PriceID) == TierFree {
				ent.Canonical = &records[i]
				break
			}
		}
	}

	ent.Plan = r.catalog[ent.Tier]
	return ent
}

func (r *Resolver) safeDefault() Entitlement {
	return Entitlement{
		Tier: TierFree,
		Plan: r.catalog[TierFree],
	}
}

// Quota returns the monthly generation quota for the user's resolved tier.
func (r *Resolver) Quota(ctx context.Context, userID string) int {
	return r.Resolve(ctx, userID).Plan.MonthlyQuota
}

// PlanFor returns the configured plan for a tier. The catalog was validated
// at construction, so every valid tier has an entry.
func (r *Resolver) PlanFor(tier Tier) Plan {
	return r.catalog[tier]
}
