package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by SQLite.
type UserRepository struct {
	q querier
}

// GetByID returns a user or apperr.NotFoundError.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	err := r.q.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityUser, id)
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// Upsert inserts or replaces a user with an explicit id.
func (r *UserRepository) Upsert(ctx context.Context, u user.User) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO users (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("upserting user %d: %w", u.ID, err)
	}
	return nil
}
