package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/user"
)

// SubscriptionStore implements billing.Store.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, user_id, COALESCE(customer_id, ''), subscription_id,
	COALESCE(price_id, ''), status, current_period_end, created_at, updated_at`

func scanRecord(row pgx.Row) (*billing.Record, error) {
	var rec billing.Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.CustomerID, &rec.SubscriptionID,
		&rec.PriceID, &rec.Status, &rec.CurrentPeriodEnd, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, rec billing.Record) error {
	if err := billing.ValidateRecord(rec); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions
			(id, user_id, customer_id, subscription_id, price_id, status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.CustomerID, rec.SubscriptionID, rec.PriceID,
		rec.Status, rec.CurrentPeriodEnd, rec.CreatedAt, rec.UpdatedAt)
	if pg.IsForeignKeyViolationError(err) {
		// The referenced mirror row is gone, typically a user deleted
		// between webhook receipt and persistence.
		return user.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// ListByUser returns records in creation order; the entitlement tie-break
// depends on it.
func (s *SubscriptionStore) ListByUser(ctx context.Context, userID string) ([]billing.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var records []billing.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SubscriptionStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*billing.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE subscription_id = $1
		ORDER BY created_at, id
		LIMIT 1`,
		subscriptionID))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return rec, nil
}

// Upsert updates the record matching subscription id and user, inserting
// when none exists.
func (s *SubscriptionStore) Upsert(ctx context.Context, rec billing.Record) error {
	if err := billing.ValidateRecord(rec); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET customer_id = NULLIF($3, ''),
		    price_id = NULLIF($4, ''),
		    status = $5,
		    current_period_end = $6,
		    updated_at = $7
		WHERE subscription_id = $1 AND user_id = $2`,
		rec.SubscriptionID, rec.UserID, rec.CustomerID, rec.PriceID,
		rec.Status, rec.CurrentPeriodEnd, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.Create(ctx, rec)
}

func (s *SubscriptionStore) DeleteBySubscriptionID(ctx context.Context, subscriptionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE subscription_id = $1`, subscriptionID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) DeleteFreeByUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND subscription_id = $2`,
		userID, billing.FreeSubscriptionID); err != nil {
		return fmt.Errorf("delete free subscription: %w", err)
	}
	return nil
}
