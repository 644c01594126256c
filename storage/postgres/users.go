// Package postgres implements the service store interfaces on PostgreSQL
// via pgx. Schema lives in migrations/ and is applied with goose at boot.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchpilot/launchpilot/pkg/pg"
	"github.com/launchpilot/launchpilot/svc/user"
)

// UserStore implements user.Store.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Upsert(ctx context.Context, u user.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    updated_at = EXCLUDED.updated_at`,
		u.ID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

func (s *UserStore) GetByCustomerID(ctx context.Context, customerID string) (*user.User, error) {
	if customerID == "" {
		return nil, user.ErrUserNotFound
	}
	return s.get(ctx, `WHERE customer_id = $1`, customerID)
}

func (s *UserStore) get(ctx context.Context, where string, arg any) (*user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, COALESCE(customer_id, ''), created_at, updated_at
		FROM users `+where,
		arg).Scan(&u.ID, &u.Email, &u.Name, &u.CustomerID, &u.CreatedAt, &u.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) LinkCustomer(ctx context.Context, userID, customerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET customer_id = $2, updated_at = now()
		WHERE id = $1`,
		userID, customerID)
	if err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
