package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/apperr"
)

const (
	addressColumns = `id, user_id, recipient, phone, line, city, created_at`

	createAddressSQL = `INSERT INTO shipping_addresses (user_id, recipient, phone, line, city, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	getAddressByIDSQL = `SELECT ` + addressColumns + ` FROM shipping_addresses WHERE id = $1`

	listAddressesByUserSQL = `SELECT ` + addressColumns + ` FROM shipping_addresses
		WHERE user_id = $1 ORDER BY id`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM shipping_addresses ORDER BY id`

	deleteAddressSQL = `DELETE FROM shipping_addresses WHERE id = $1`

	countAddressOrdersSQL = `SELECT count(*) FROM orders WHERE shipping_address_id = $1`

	upsertAddressSQL = `INSERT INTO shipping_addresses (id, user_id, recipient, phone, line, city, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, recipient = EXCLUDED.recipient,
			phone = EXCLUDED.phone, line = EXCLUDED.line, city = EXCLUDED.city`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	q querier
}

// Create inserts a new address and assigns its id.
func (r *AddressRepository) Create(ctx context.Context, a *address.ShippingAddress) error {
	err := r.q.QueryRow(ctx, createAddressSQL,
		a.UserID, a.Recipient, a.Phone, a.Line, a.City, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isPgCode(err, codeForeignKeyViolation) {
			return apperr.NotFound(apperr.EntityUser, a.UserID)
		}
		return fmt.Errorf("creating shipping address: %w", err)
	}
	return nil
}

// GetByID returns an address or apperr.NotFoundError.
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*address.ShippingAddress, error) {
	rows, err := r.q.Query(ctx, getAddressByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting shipping address %d: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[address.ShippingAddress])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityShippingAddress, id)
		}
		return nil, fmt.Errorf("getting shipping address %d: %w", id, err)
	}
	return &a, nil
}

// ListByUser returns the addresses of one user ordered by id.
func (r *AddressRepository) ListByUser(ctx context.Context, userID int64) ([]address.ShippingAddress, error) {
	rows, err := r.q.Query(ctx, listAddressesByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing shipping addresses of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[address.ShippingAddress])
}

// List returns every address ordered by id.
func (r *AddressRepository) List(ctx context.Context) ([]address.ShippingAddress, error) {
	rows, err := r.q.Query(ctx, listAddressesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping addresses: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[address.ShippingAddress])
}

// Delete removes an address. A foreign key violation from orders is reported
// as apperr.ConflictError.
func (r *AddressRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, deleteAddressSQL, id)
	if err != nil {
		if isPgCode(err, codeForeignKeyViolation) {
			return &apperr.ConflictError{
				Entity: apperr.EntityShippingAddress,
				ID:     strconv.FormatInt(id, 10),
				Reason: "referenced by existing orders",
			}
		}
		return fmt.Errorf("deleting shipping address %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.EntityShippingAddress, id)
	}
	return nil
}

// CountOrders returns how many orders reference the address.
func (r *AddressRepository) CountOrders(ctx context.Context, id int64) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, countAddressOrdersSQL, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of shipping address %d: %w", id, err)
	}
	return n, nil
}

// Upsert inserts or replaces an address with an explicit id.
func (r *AddressRepository) Upsert(ctx context.Context, a address.ShippingAddress) error {
	_, err := r.q.Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Recipient, a.Phone, a.Line, a.City, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting shipping address %d: %w", a.ID, err)
	}
	return nil
}
