package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/svc/usage"
	"github.com/launchpilot/launchpilot/svc/user"
)

// UsageStore implements usage.Store.
type UsageStore struct {
	pool *pgxpool.Pool
}

func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{pool: pool}
}

func (s *UsageStore) Insert(ctx context.Context, ev usage.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_events (id, user_id, problem, strategy, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.UserID, ev.Problem, ev.Strategy, ev.CreatedAt)
	if pg.IsForeignKeyViolationError(err) {
		return user.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *UsageStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM usage_events
		WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return count, nil
}

func (s *UsageStore) FirstEventAt(ctx context.Context, userID string) (*time.Time, error) {
	var first *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(created_at) FROM usage_events WHERE user_id = $1`,
		userID).Scan(&first)
	if err != nil {
		return nil, fmt.Errorf("first usage event: %w", err)
	}
	return first, nil
}
