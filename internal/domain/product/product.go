package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog item with a mutable stock counter. Stock never drops
// below zero; the inventory ledger is the only writer of it.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// StockRepository is the transactional view of products used by the inventory
// ledger. GetForUpdate must lock the row until the surrounding unit of work
// ends so that concurrent reservations of the same product serialize.
type StockRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Product, error)
	SetStock(ctx context.Context, id int64, stock int) error
}
