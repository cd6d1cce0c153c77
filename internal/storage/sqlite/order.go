package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/revenue"
)

const orderColumns = `id, user_id, shipping_address_id, total_amount, status,
	description, payment_method, restocked, created_at`

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ order.TxRepository = (*OrderRepository)(nil)
	_ revenue.Source     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.TxRepository backed
// by SQLite.
type OrderRepository struct {
	q querier
}

// Create inserts the order row and its items.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.ShippingAddressID, o.TotalAmount.String(), string(o.Status),
		o.Description, o.PaymentMethod, o.Restocked, formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i, item := range o.Items {
		_, err := r.q.ExecContext(ctx, `INSERT INTO order_items (order_id, position, product_id, quantity)
			VALUES (?, ?, ?, ?)`, o.ID, i, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("creating item %d of order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

// GetByID returns an order with its items or apperr.NotFoundError.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityOrder, id)
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetForUpdate reads an order inside the current transaction.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

// ListByUser returns a user's orders, oldest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return r.collect(ctx, rows)
}

// List returns every order, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return r.collect(ctx, rows)
}

// Save writes back the mutable fields of an order.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	res, err := r.q.ExecContext(ctx, `UPDATE orders SET status = ?, restocked = ? WHERE id = ?`,
		string(o.Status), o.Restocked, o.ID)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	if n == 0 {
		return apperr.NotFound(apperr.EntityOrder, o.ID)
	}
	return nil
}

// RevenueEntries returns creation time and total of every order.
func (r *OrderRepository) RevenueEntries(ctx context.Context) ([]revenue.Entry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT created_at, total_amount FROM orders`)
	if err != nil {
		return nil, fmt.Errorf("listing revenue entries: %w", err)
	}
	return collect(rows, func(row scanner) (revenue.Entry, error) {
		var (
			e       revenue.Entry
			created string
		)
		if err := row.Scan(&created, &e.TotalAmount); err != nil {
			return e, err
		}
		t, err := parseTime(created)
		e.CreatedAt = t
		return e, err
	})
}

func (r *OrderRepository) collect(ctx context.Context, rows *sql.Rows) ([]order.Order, error) {
	orders, err := collect(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all given orders in one query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	args := make([]any, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		args[i] = o.ID
		index[o.ID] = i
	}
	query := `SELECT order_id, product_id, quantity FROM order_items WHERE order_id IN (?` +
		strings.Repeat(", ?", len(orders)-1) + `) ORDER BY order_id, position`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	type line struct {
		orderID string
		item    order.Item
	}
	lines, err := collect(rows, func(row scanner) (line, error) {
		var l line
		err := row.Scan(&l.orderID, &l.item.ProductID, &l.item.Quantity)
		return l, err
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	for _, l := range lines {
		i := index[l.orderID]
		orders[i].Items = append(orders[i].Items, l.item)
	}
	return nil
}

func scanOrder(row scanner) (order.Order, error) {
	var (
		o       order.Order
		total   decimal.Decimal
		status  string
		created string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.ShippingAddressID, &total, &status,
		&o.Description, &o.PaymentMethod, &o.Restocked, &created,
	)
	if err != nil {
		return o, err
	}
	o.TotalAmount = total
	o.Status = order.Status(status)
	o.CreatedAt, err = parseTime(created)
	return o, err
}
