package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/svc/billing"
)

type failingStore struct{}

func (failingStore) Create(context.Context, billing.Record) error { return errors.New("db down") }
func (failingStore) ListByUser(context.Context, string) ([]billing.Record, error) {
	return nil, errors.New("db down")
}
func (failingStore) GetBySubscriptionID(context.Context, string) (*billing.Record, error) {
	return nil, errors.New("db down")
}
func (failingStore) Upsert(context.Context, billing.Record) error { return errors.New("db down") }
func (failingStore) DeleteBySubscriptionID(context.Context, string) error {
	return errors.New("db down")
}
func (failingStore) DeleteFreeByUser(context.Context, string) error { return errors.New("db down") }

func newResolver(t *testing.T, store billing.Store) *billing.Resolver {
	t.Helper()
	r, err := billing.NewResolver(
		store,
		billing.NewClassifier(testPrices(), quietLogger()),
		billing.DefaultCatalog(),
		quietLogger(),
	)
	require.NoError(t, err)
	return r
}

func record(userID, subID, priceID string, status billing.Status) billing.Record {
	now := time.Now().UTC()
	return billing.Record{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subID,
		PriceID:        priceID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStoreRejectsIncompleteRecord(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()

	rec := record("", "sub_1", "price_starter_m", billing.StatusActive)
	assert.ErrorIs(t, store.Create(context.Background(), rec), billing.ErrMissingUserID)

	rec = record("user-1", "", "price_starter_m", billing.StatusActive)
	assert.ErrorIs(t, store.Upsert(context.Background(), rec), billing.ErrMissingSubscriptionID)
}

func TestResolveNoRecords(t *testing.T) {
	t.Parallel()

	r := newResolver(t, billing.NewMemoryStore())
	ent := r.Resolve(context.Background(), "user-1")

	assert.Equal(t, billing.TierFree, ent.Tier)
	assert.False(t, ent.IsActive)
	assert.False(t, ent.IsPaid)
	assert.Nil(t, ent.Canonical)
	assert.Equal(t, 2, ent.Plan.MonthlyQuota)
}

func TestResolvePaidBeatsFree(t *testing.T) {
	t.Parallel()

	// Insertion order must not matter: run both orders.
	orders := map[string][]billing.Record{
		"free first": {
			billing.NewFreeRecord("user-1", time.Now().UTC()),
			record("user-1", "sub_123", "price_starter_m", billing.StatusActive),
		},
		"paid first": {
			record("user-1", "sub_123", "price_starter_m", billing.StatusActive),
			billing.NewFreeRecord("user-1", time.Now().UTC()),
		},
	}

	for name, records := range orders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := billing.NewMemoryStore()
			for _, rec := range records {
				require.NoError(t, store.Create(context.Background(), rec))
			}

			ent := newResolver(t, store).Resolve(context.Background(), "user-1")
			assert.Equal(t, billing.TierStarter, ent.Tier)
			assert.True(t, ent.IsPaid)
			assert.True(t, ent.IsActive)
			require.NotNil(t, ent.Canonical)
			assert.Equal(t, "sub_123", ent.Canonical.SubscriptionID)
		})
	}
}

func TestResolveHigherRankWins(t *testing.T) {
	t.Parallel()

	orders := map[string][]billing.Record{
		"starter first": {
			record("user-1", "sub_starter", "price_starter_m", billing.StatusActive),
			record("user-1", "sub_pro", "price_pro_y", billing.StatusActive),
		},
		"pro first": {
			record("user-1", "sub_pro", "price_pro_y", billing.StatusActive),
			record("user-1", "sub_starter", "price_starter_m", billing.StatusActive),
		},
	}

	for name, records := range orders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := billing.NewMemoryStore()
			for _, rec := range records {
				require.NoError(t, store.Create(context.Background(), rec))
			}

			ent := newResolver(t, store).Resolve(context.Background(), "user-1")
			assert.Equal(t, billing.TierPro, ent.Tier)
			require.NotNil(t, ent.Canonical)
			assert.Equal(t, "sub_pro", ent.Canonical.SubscriptionID)
		})
	}
}

func TestResolveSameRankTieBreaksByCreationOrder(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	first := record("user-1", "sub_a", "price_starter_m", billing.StatusActive)
	second := record("user-1", "sub_b", "price_starter_y", billing.StatusActive)
	require.NoError(t, store.Create(context.Background(), first))
	require.NoError(t, store.Create(context.Background(), second))

	ent := newResolver(t, store).Resolve(context.Background(), "user-1")
	require.NotNil(t, ent.Canonical)
	assert.Equal(t, "sub_a", ent.Canonical.SubscriptionID)
}

func TestResolveTrialingCounts(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		record("user-1", "sub_trial", "price_pro_m", billing.StatusTrialing)))

	ent := newResolver(t, store).Resolve(context.Background(), "user-1")
	assert.Equal(t, billing.TierPro, ent.Tier)
	assert.True(t, ent.IsActive)
	assert.True(t, ent.IsPaid)
}

func TestResolveCanceledPaidFallsBackToFreeRecord(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		record("user-1", "sub_old", "price_pro_m", billing.StatusCanceled)))
	free := billing.NewFreeRecord("user-1", time.Now().UTC())
	free.Status = billing.StatusCanceled // even non-active free records still anchor the free tier
	require.NoError(t, store.Create(context.Background(), free))

	ent := newResolver(t, store).Resolve(context.Background(), "user-1")
	assert.Equal(t, billing.TierFree, ent.Tier)
	assert.False(t, ent.IsActive)
	assert.False(t, ent.IsPaid)
	require.NotNil(t, ent.Canonical)
	assert.True(t, ent.Canonical.IsFree())
}

func TestResolveStorageFailureFailsClosed(t *testing.T) {
	t.Parallel()

	ent := newResolver(t, failingStore{}).Resolve(context.Background(), "user-1")
	assert.Equal(t, billing.TierFree, ent.Tier)
	assert.False(t, ent.IsActive)
	assert.False(t, ent.IsPaid)
	assert.Nil(t, ent.Canonical)
	// The safe default still carries the free plan limits for UI rendering.
	assert.Equal(t, 2, ent.Plan.MonthlyQuota)
}

func TestNewResolverRejectsIncompleteCatalog(t *testing.T) {
	t.Parallel()

	catalog := billing.DefaultCatalog()
	delete(catalog, billing.TierPro)

	_, err := billing.NewResolver(
		billing.NewMemoryStore(),
		billing.NewClassifier(testPrices(), quietLogger()),
		catalog,
		quietLogger(),
	)
	assert.ErrorIs(t, err, billing.ErrPlanNotConfigured)
}
