// Package inventory owns per-product stock counts and enforces that they
// never drop below zero.
package inventory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/product"
)

// Ledger reserves and releases stock through a transactional product view.
// A Ledger is bound to one unit of work; its writes commit or roll back with it.
type Ledger struct {
	stock product.StockRepository
}

// NewLedger returns a Ledger operating on the given transactional repository.
func NewLedger(stock product.StockRepository) *Ledger {
	return &Ledger{stock: stock}
}

// Lock takes row locks on the given products in ascending id order. Taking
// all locks up front in a fixed order keeps two orders touching the same
// products from deadlocking each other. Unknown ids are skipped here and
// reported by Reserve.
func (l *Ledger) Lock(ctx context.Context, ids []int64) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, id := range sorted {
		if _, err := l.stock.GetForUpdate(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return errors.Wrapf(err, "lock product %d", id)
		}
	}
	return nil
}

// Reserve decrements the stock of a product by quantity and returns the
// product with its new stock value. It fails with *apperr.InsufficientStockError
// when quantity exceeds the available stock, leaving the stock untouched.
func (l *Ledger) Reserve(ctx context.Context, productID int64, quantity int) (*product.Product, error) {
	if quantity <= 0 {
		return nil, apperr.Invalid("quantity", "must be greater than 0")
	}

	p, err := l.stock.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, &apperr.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: quantity,
			Available: p.Stock,
		}
	}

	p.Stock -= quantity
	if err := l.stock.SetStock(ctx, p.ID, p.Stock); err != nil {
		return nil, errors.Wrapf(err, "save stock for product %d", p.ID)
	}
	return p, nil
}

// Release returns quantity units to a product's stock.
func (l *Ledger) Release(ctx context.Context, productID int64, quantity int) (*product.Product, error) {
	if quantity <= 0 {
		return nil, apperr.Invalid("quantity", "must be greater than 0")
	}

	p, err := l.stock.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}

	p.Stock += quantity
	if err := l.stock.SetStock(ctx, p.ID, p.Stock); err != nil {
		return nil, errors.Wrapf(err, "save stock for product %d", p.ID)
	}
	return p, nil
}
