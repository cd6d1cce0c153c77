package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, name, email FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	q querier
}

// GetByID returns a user or apperr.NotFoundError.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	rows, err := r.q.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[user.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityUser, id)
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// Upsert inserts or replaces a user with an explicit id.
func (r *UserRepository) Upsert(ctx context.Context, u user.User) error {
	if _, err := r.q.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email); err != nil {
		return fmt.Errorf("upserting user %d: %w", u.ID, err)
	}
	return nil
}
