// Package notification delivers order confirmations to customers on a best
// effort basis. Delivery happens after the order is committed, at most once
// per sender, and its failures never reach the checkout caller.
package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// Notice is the snapshot handed to senders.
type Notice struct {
	OrderID       string
	UserID        int64
	CustomerName  string
	CustomerEmail string
	Status        string
	PaymentMethod string
	Description   string
	TotalAmount   decimal.Decimal
	Items         []Line
	PlacedAt      time.Time
}

// Line is one ordered product in a Notice.
type Line struct {
	ProductID int64
	Quantity  int
}

// NewNotice builds the Notice for an order placed by customer.
func NewNotice(customer user.User, o order.Order) Notice {
	lines := make([]Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return Notice{
		OrderID:       o.ID,
		UserID:        customer.ID,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Status:        o.Status.String(),
		PaymentMethod: o.PaymentMethod,
		Description:   o.Description,
		TotalAmount:   o.TotalAmount,
		Items:         lines,
		PlacedAt:      o.CreatedAt,
	}
}

// Sender delivers a Notice over one channel (email, event bus).
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notice) error
}
