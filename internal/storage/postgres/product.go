package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, price, stock FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, stock FROM products WHERE id = ANY($1) ORDER BY id`

	getProductForUpdateSQL = `SELECT id, name, price, stock FROM products WHERE id = $1 FOR UPDATE`

	setStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`
)

var (
	_ product.Repository      = (*ProductRepository)(nil)
	_ product.StockRepository = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.StockRepository
// backed by PostgreSQL.
type ProductRepository struct {
	q querier
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[product.Product])
}

// GetForUpdate reads a product and locks its row until the transaction ends.
// Only meaningful on a transaction-bound repository.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id int64) (*product.Product, error) {
	return r.getOne(ctx, getProductForUpdateSQL, id)
}

// SetStock overwrites the stock counter. The CHECK constraint rejects
// negative values; callers reserve through the inventory ledger, which never
// writes one.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) error {
	tag, err := r.q.Exec(ctx, setStockSQL, id, stock)
	if err != nil {
		if isPgCode(err, codeCheckViolation) {
			return fmt.Errorf("setting stock of product %d to %d: negative stock rejected: %w", id, stock, err)
		}
		return fmt.Errorf("setting stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.EntityProduct, id)
	}
	return nil
}

// Upsert inserts or replaces a product with an explicit id.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.q.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock); err != nil {
		return fmt.Errorf("upserting product %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) getOne(ctx context.Context, sql string, id int64) (*product.Product, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[product.Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityProduct, id)
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}
