package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/apperr"
)

const addressColumns = `id, user_id, recipient, phone, line, city, created_at`

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by SQLite.
type AddressRepository struct {
	q querier
}

// Create inserts a new address and assigns its id.
func (r *AddressRepository) Create(ctx context.Context, a *address.ShippingAddress) error {
	res, err := r.q.ExecContext(ctx, `INSERT INTO shipping_addresses
		(user_id, recipient, phone, line, city, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Recipient, a.Phone, a.Line, a.City, formatTime(a.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.NotFound(apperr.EntityUser, a.UserID)
		}
		return fmt.Errorf("creating shipping address: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("creating shipping address: %w", err)
	}
	a.ID = id
	return nil
}

// GetByID returns an address or apperr.NotFoundError.
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*address.ShippingAddress, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM shipping_addresses WHERE id = ?`, id)
	a, err := scanAddress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityShippingAddress, id)
		}
		return nil, fmt.Errorf("getting shipping address %d: %w", id, err)
	}
	return &a, nil
}

// ListByUser returns the addresses of one user ordered by id.
func (r *AddressRepository) ListByUser(ctx context.Context, userID int64) ([]address.ShippingAddress, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM shipping_addresses WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing shipping addresses of user %d: %w", userID, err)
	}
	return collect(rows, scanAddress)
}

// List returns every address ordered by id.
func (r *AddressRepository) List(ctx context.Context) ([]address.ShippingAddress, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+addressColumns+` FROM shipping_addresses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing shipping addresses: %w", err)
	}
	return collect(rows, scanAddress)
}

// Delete removes an address. A foreign key violation from orders is reported
// as apperr.ConflictError.
func (r *AddressRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM shipping_addresses WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &apperr.ConflictError{
				Entity: apperr.EntityShippingAddress,
				ID:     strconv.FormatInt(id, 10),
				Reason: "referenced by existing orders",
			}
		}
		return fmt.Errorf("deleting shipping address %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting shipping address %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound(apperr.EntityShippingAddress, id)
	}
	return nil
}

// CountOrders returns how many orders reference the address.
func (r *AddressRepository) CountOrders(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM orders WHERE shipping_address_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting orders of shipping address %d: %w", id, err)
	}
	return n, nil
}

// Upsert inserts or replaces an address with an explicit id.
func (r *AddressRepository) Upsert(ctx context.Context, a address.ShippingAddress) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO shipping_addresses
		(id, user_id, recipient, phone, line, city, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, recipient = excluded.recipient,
			phone = excluded.phone, line = excluded.line, city = excluded.city`,
		a.ID, a.UserID, a.Recipient, a.Phone, a.Line, a.City, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting shipping address %d: %w", a.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(row scanner) (address.ShippingAddress, error) {
	var (
		a       address.ShippingAddress
		created string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Recipient, &a.Phone, &a.Line, &a.City, &created); err != nil {
		return a, err
	}
	t, err := parseTime(created)
	a.CreatedAt = t
	return a, err
}

// collect scans every row and closes rows before returning, which frees the
// single connection for the next statement.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
