package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/revenue"
)

const (
	orderColumns = `id, user_id, shipping_address_id, total_amount, status,
		description, payment_method, restocked, created_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, shipping_address_id, total_amount, status,
		description, payment_method, restocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, quantity)
		VALUES ($1, $2, $3, $4)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at, id`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at, id`

	listOrderItemsSQL = `SELECT order_id, product_id, quantity FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, position`

	saveOrderSQL = `UPDATE orders SET status = $2, restocked = $3 WHERE id = $1`

	revenueEntriesSQL = `SELECT created_at, total_amount FROM orders`
)

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ order.TxRepository = (*OrderRepository)(nil)
	_ revenue.Source     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.TxRepository backed
// by PostgreSQL. Items are stored one row per line in order_items.
type OrderRepository struct {
	q querier
}

// Create inserts the order row and its items. Callers run it inside a
// transaction so a failing item insert discards the order too.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	_, err = r.q.Exec(ctx, createOrderSQL,
		id, o.UserID, o.ShippingAddressID, o.TotalAmount, string(o.Status),
		o.Description, o.PaymentMethod, o.Restocked, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i, item := range o.Items {
		if _, err := r.q.Exec(ctx, createOrderItemSQL, id, i, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("creating item %d of order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

// GetByID returns an order with its items or apperr.NotFoundError.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetForUpdate reads an order and locks its row until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

// ListByUser returns a user's orders, oldest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return r.collect(ctx, rows)
}

// List returns every order, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return r.collect(ctx, rows)
}

// Save writes back the mutable fields of an order.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return apperr.NotFound(apperr.EntityOrder, o.ID)
	}
	tag, err := r.q.Exec(ctx, saveOrderSQL, id, string(o.Status), o.Restocked)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.EntityOrder, o.ID)
	}
	return nil
}

// RevenueEntries returns creation time and total of every order.
func (r *OrderRepository) RevenueEntries(ctx context.Context) ([]revenue.Entry, error) {
	rows, err := r.q.Query(ctx, revenueEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing revenue entries: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[revenue.Entry])
}

func (r *OrderRepository) getOne(ctx context.Context, sql, id string) (*order.Order, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound(apperr.EntityOrder, id)
	}

	rows, err := r.q.Query(ctx, sql, parsed)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (r *OrderRepository) collect(ctx context.Context, rows pgx.Rows) ([]order.Order, error) {
	orders, err := pgx.CollectRows(rows, scanOrder)
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

	ids := make([]uuid.UUID, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = uuid.MustParse(o.ID)
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			item    order.Item
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		i := index[orderID.String()]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		id     uuid.UUID
		total  decimal.Decimal
		status string
	)
	err := row.Scan(
		&id, &o.UserID, &o.ShippingAddressID, &total, &status,
		&o.Description, &o.PaymentMethod, &o.Restocked, &o.CreatedAt,
	)
	o.ID = id.String()
	o.TotalAmount = total
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}
