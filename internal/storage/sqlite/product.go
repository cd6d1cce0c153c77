package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/product"
)

const productColumns = `id, name, price, stock`

var (
	_ product.Repository      = (*ProductRepository)(nil)
	_ product.StockRepository = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.StockRepository
// backed by SQLite.
type ProductRepository struct {
	q querier
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(apperr.EntityProduct, id)
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	if len(ids) == 0 {
		return []product.Product{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `) ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return collect(rows, scanProduct)
}

// GetForUpdate reads a product inside the current transaction. The single
// connection already serializes transactions, so no row lock is taken.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id int64) (*product.Product, error) {
	return r.GetByID(ctx, id)
}

// SetStock overwrites the stock counter. The CHECK constraint rejects
// negative values; callers reserve through the inventory ledger, which never
// writes one.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, stock, id)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("setting stock of product %d to %d: negative stock rejected: %w", id, stock, err)
		}
		return fmt.Errorf("setting stock of product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting stock of product %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound(apperr.EntityProduct, id)
	}
	return nil
}

// Upsert inserts or replaces a product with an explicit id.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO products (id, name, price, stock) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price, stock = excluded.stock`,
		p.ID, p.Name, p.Price.String(), p.Stock)
	if err != nil {
		return fmt.Errorf("upserting product %d: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row scanner) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	return p, err
}
