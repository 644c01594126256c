package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

// LedgerStore implements mailer.LedgerStore. The UNIQUE constraint on the
// key column is the at-most-once mechanism: a lost insert race surfaces as
// a duplicate-key error, reported as "not reserved" rather than a failure.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) Reserve(ctx context.Context, entry mailer.LedgerEntry) (bool, error) {
	if entry.Key == "" {
		return false, mailer.ErrMissingKey
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_ledger (key, user_id, recipient, template, meta, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		entry.Key, entry.UserID, entry.Recipient, entry.Template, entry.Meta, entry.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reserve notification: %w", err)
	}
	return true, nil
}

func (s *LedgerStore) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM notification_ledger WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}

func (s *LedgerStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_ledger WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return exists, nil
}
