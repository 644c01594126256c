package usage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/usage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPrices() billing.PriceConfig {
	return billing.PriceConfig{
		StarterMonthly: "price_starter_m",
		ProMonthly:     "price_pro_m",
	}
}

// newService wires a usage service backed by memory stores. The returned
// subscription store starts empty, so users resolve to the free tier
// (quota 2 in the default catalog) unless records are added.
func newService(t *testing.T, store usage.Store, now func() time.Time) (*usage.Service, *billing.MemoryStore) {
	t.Helper()

	subs := billing.NewMemoryStore()
	resolver, err := billing.NewResolver(
		subs,
		billing.NewClassifier(testPrices(), quietLogger()),
		billing.DefaultCatalog(),
		quietLogger(),
	)
	require.NoError(t, err)

	svc, err := usage.NewService(store, resolver, quietLogger(), usage.WithClock(now))
	require.NoError(t, err)
	return svc, subs
}

func subscribe(t *testing.T, subs *billing.MemoryStore, userID, priceID string) {
	t.Helper()
	require.NoError(t, subs.Create(context.Background(), billing.Record{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: "sub_" + userID,
		PriceID:        priceID,
		Status:         billing.StatusActive,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}))
}

func TestMonthStart(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 8, 30, 17, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), usage.MonthStart(in))
}

func TestCanGenerateQuotaBoundaries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// Free tier quota is 2; exercise used = limit-1, limit, limit+1.
	for used, wantAllowed := range map[int]bool{1: true, 2: false, 3: false} {
		store := usage.NewMemoryStore()
		for range used {
			require.NoError(t, store.Insert(ctx, usage.Event{
				ID:        uuid.New(),
				UserID:    "user-1",
				CreatedAt: now,
			}))
		}

		svc, _ := newService(t, store, func() time.Time { return now })
		snap := svc.CanGenerate(ctx, "user-1")
		assert.Equal(t, used, snap.Used)
		assert.Equal(t, 2, snap.Limit)
		assert.Equal(t, wantAllowed, snap.Allowed, "used=%d", used)
	}
}

func TestCanGenerateUsesResolvedTierQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	svc, subs := newService(t, usage.NewMemoryStore(), func() time.Time { return now })
	subscribe(t, subs, "user-1", "price_pro_m")

	snap := svc.CanGenerate(ctx, "user-1")
	assert.Equal(t, 60, snap.Limit)
	assert.True(t, snap.Allowed)
}

func TestRecordGenerationCountsWithinMonth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	current := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	svc, subs := newService(t, usage.NewMemoryStore(), func() time.Time { return current })
	subscribe(t, subs, "user-1", "price_starter_m")

	used, err := svc.RecordGeneration(ctx, "user-1", billing.TierStarter, "no users", "strategy text")
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	snap := svc.CanGenerate(ctx, "user-1")
	assert.Equal(t, 1, snap.Used)

	// Crossing into the next calendar month resets the window.
	current = time.Date(2026, 9, 1, 0, 0, 1, 0, time.UTC)
	snap = svc.CanGenerate(ctx, "user-1")
	assert.Equal(t, 0, snap.Used)
	assert.True(t, snap.Allowed)
}

func TestRecordGenerationFreeTierIsPersisted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, usage.NewMemoryStore(), func() time.Time { return now })

	used, err := svc.RecordGeneration(ctx, "user-1", billing.TierFree, "p", "s")
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	snap := svc.CanGenerate(ctx, "user-1")
	assert.Equal(t, 1, snap.Used)
}

func TestRecordGenerationTestTierSkipsPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	store := usage.NewMemoryStore()
	svc, _ := newService(t, store, func() time.Time { return now })

	used, err := svc.RecordGeneration(ctx, "user-1", billing.TierTest, "p", "s")
	require.NoError(t, err)
	assert.Equal(t, 0, used)

	count, err := store.CountSince(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecordGenerationRequiresUserID(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, usage.NewMemoryStore(), time.Now)
	_, err := svc.RecordGeneration(context.Background(), "", billing.TierFree, "p", "s")
	assert.ErrorIs(t, err, usage.ErrMissingUserID)
}

func TestFollowupDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first := time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC)
	current := first

	store := usage.NewMemoryStore()
	svc, _ := newService(t, store, func() time.Time { return current })

	// No events: never due.
	snap := svc.Stats(ctx, "user-1")
	assert.False(t, snap.IsFollowupDue)
	assert.Nil(t, snap.FirstEventAt)

	_, err := svc.RecordGeneration(ctx, "user-1", billing.TierFree, "p", "s")
	require.NoError(t, err)

	// One day before the one-month mark.
	current = time.Date(2026, 8, 9, 9, 0, 0, 0, time.UTC)
	snap = svc.Stats(ctx, "user-1")
	assert.False(t, snap.IsFollowupDue)

	// Exactly one calendar month later.
	current = time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	snap = svc.Stats(ctx, "user-1")
	assert.True(t, snap.IsFollowupDue)
	require.NotNil(t, snap.FirstEventAt)
	assert.Equal(t, first, *snap.FirstEventAt)
}

type failingUsageStore struct{}

func (failingUsageStore) Insert(context.Context, usage.Event) error { return errors.New("db down") }
func (failingUsageStore) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("db down")
}
func (failingUsageStore) FirstEventAt(context.Context, string) (*time.Time, error) {
	return nil, errors.New("db down")
}

func TestCanGenerateStorageFailureDenies(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, failingUsageStore{}, time.Now)
	snap := svc.CanGenerate(context.Background(), "user-1")
	assert.False(t, snap.Allowed)
}
