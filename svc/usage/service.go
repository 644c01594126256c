// Package usage meters strategy generations against monthly quotas and
// computes the follow-up prompt window.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/svc/billing"
)

// Service counts generations per calendar month and gates new ones against
// the entitlement-resolved quota. Counting is best effort: two requests
// racing near the quota boundary may both pass the check. Closing that
// window would require a serializable read-count-write transaction, which
// the call volume does not justify.
type Service struct {
	store    Store
	resolver *billing.Resolver
	log      *slog.Logger
	now      func() time.Time
}

// Option configures the usage service.
type Option func(*Service)

// WithClock overrides the time source, used by tests to cross month
// boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a usage metering service.
func NewService(store Store, resolver *billing.Resolver, log *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:    store,
		resolver: resolver,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CanGenerate reports whether the user may generate another strategy this
// month. The quota is re-resolved on every call, never cached. A storage
// failure degrades to "quota exhausted at the free limit" — it can reduce a
// paying user's access but never widen anyone's.
func (s *Service) CanGenerate(ctx context.Context, userID string) Snapshot {
	snap := s.snapshot(ctx, userID)
	return snap
}

// Stats returns the same snapshot as CanGenerate; the separate name keeps
// read-only dashboard calls distinguishable from gating calls in logs.
func (s *Service) Stats(ctx context.Context, userID string) Snapshot {
	return s.snapshot(ctx, userID)
}

func (s *Service) snapshot(ctx context.Context, userID string) Snapshot {
	now := s.now().UTC()
	monthStart := MonthStart(now)
	limit := s.resolver.Quota(ctx, userID)

	used, err := s.store.CountSince(ctx, userID, monthStart)
	if err != nil {
		s.log.ErrorContext(ctx, "usage count degraded, denying generation",
			logger.UserID(userID), logger.Error(err))
		return Snapshot{Used: limit, Limit: limit, Allowed: false, MonthStart: monthStart}
	}

	snap := Snapshot{
		Used:       used,
		Limit:      limit,
		Allowed:    used < limit,
		MonthStart: monthStart,
	}

	first, err := s.store.FirstEventAt(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "first event lookup failed",
			logger.UserID(userID), logger.Error(err))
		return snap
	}
	if first != nil {
		snap.FirstEventAt = first
		// Follow-up is due one calendar month after the very first
		// generation, not a fixed number of days.
		snap.IsFollowupDue = !now.Before(first.AddDate(0, 1, 0))
	}

	return snap
}

// RecordGeneration persists a generation event and returns the fresh count
// for the current month. Events are recorded for every real tier including
// free; only the internal test tier skips persistence and counting.
func (s *Service) RecordGeneration(ctx context.Context, userID string, tier billing.Tier, problem, strategy string) (int, error) {
	if userID == "" {
		return 0, ErrMissingUserID
	}

	now := s.now().UTC()

	if !tier.Persistable() {
		return 0, nil
	}

	ev := Event{
		ID:        uuid.New(),
		UserID:    userID,
		Problem:   problem,
		Strategy:  strategy,
		CreatedAt: now,
	}
	if err := s.store.Insert(ctx, ev); err != nil {
		return 0, errors.Join(errors.New("failed to record generation"), err)
	}

	used, err := s.store.CountSince(ctx, userID, MonthStart(now))
	if err != nil {
		// The event is already durable; surface the count failure rather
		// than guessing a number the caller will display.
		return 0, err
	}
	return used, nil
}
