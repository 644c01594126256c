package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/user"
)

// DripStore implements drip.Store.
type DripStore struct {
	pool *pgxpool.Pool
}

func NewDripStore(pool *pgxpool.Pool) *DripStore {
	return &DripStore{pool: pool}
}

func (s *DripStore) BulkInsert(ctx context.Context, entries []drip.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO drip_schedule (id, user_id, day_offset, template, scheduled_for, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.UserID, e.DayOffset, e.Template, e.ScheduledFor, e.CreatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return user.ErrUserNotFound
		}
		return fmt.Errorf("insert drip schedule: %w", err)
	}
	return nil
}

func (s *DripStore) ListDue(ctx context.Context, now time.Time, limit int) ([]drip.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, day_offset, template, scheduled_for, sent_at, created_at
		FROM drip_schedule
		WHERE sent_at IS NULL AND scheduled_for <= $1
		ORDER BY scheduled_for, id
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due drip entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *DripStore) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE drip_schedule SET sent_at = $2 WHERE id = $1`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark drip entry sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return drip.ErrEntryNotFound
	}
	return nil
}

func (s *DripStore) ListByUser(ctx context.Context, userID string) ([]drip.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, day_offset, template, scheduled_for, sent_at, created_at
		FROM drip_schedule
		WHERE user_id = $1
		ORDER BY day_offset`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list drip entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]drip.Entry, error) {
	var entries []drip.Entry
	for rows.Next() {
		var e drip.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.DayOffset, &e.Template,
			&e.ScheduledFor, &e.SentAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan drip entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
