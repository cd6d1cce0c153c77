package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// Order is the checkout aggregate: the order row plus its items. Only Status
// (and the Restocked marker) change after creation.
type Order struct {
	ID                string
	UserID            int64
	ShippingAddressID int64
	Items             []Item
	TotalAmount       decimal.Decimal
	Status            Status
	Description       string
	PaymentMethod     string
	CreatedAt         time.Time
	// Restocked is set once the reserved quantities were returned to stock.
	Restocked bool
}

// Item is a single order line.
type Item struct {
	ProductID int64
	Quantity  int
}

// Repository reads orders and their items. Orders are only written through
// TxRepository inside a unit of work.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
}

// TxRepository is the transactional view of orders. GetForUpdate locks the
// order row until the unit of work ends; Save writes back the mutable fields.
type TxRepository interface {
	Create(ctx context.Context, o *Order) error
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, o *Order) error
}

// AddressReader resolves shipping addresses.
type AddressReader interface {
	GetByID(ctx context.Context, id int64) (*address.ShippingAddress, error)
}

// Tx groups the repositories bound to one unit of work.
type Tx struct {
	Users     user.Repository
	Addresses AddressReader
	Stock     product.StockRepository
	Orders    TxRepository
}

// Store runs fn inside one atomic unit of work. Everything written through
// the Tx is committed when fn returns nil and discarded otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier receives placed orders after commit. Implementations must not
// block the caller and must not report delivery failures back.
type Notifier interface {
	OrderPlaced(ctx context.Context, customer user.User, o Order)
}
