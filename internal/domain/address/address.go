package address

import (
	"context"
	"time"
)

// ShippingAddress is a delivery destination owned by a user. It cannot be
// deleted while any order references it.
type ShippingAddress struct {
	ID        int64
	UserID    int64
	Recipient string
	Phone     string
	Line      string
	City      string
	CreatedAt time.Time
}

// Repository persists shipping addresses.
type Repository interface {
	Create(ctx context.Context, a *ShippingAddress) error
	GetByID(ctx context.Context, id int64) (*ShippingAddress, error)
	ListByUser(ctx context.Context, userID int64) ([]ShippingAddress, error)
	List(ctx context.Context) ([]ShippingAddress, error)
	Delete(ctx context.Context, id int64) error
	// CountOrders returns how many orders reference the address.
	CountOrders(ctx context.Context, id int64) (int, error)
}

// Store runs fn inside one transaction with a repository bound to it.
type Store interface {
	InAddressTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
