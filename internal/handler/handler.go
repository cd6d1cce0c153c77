// Package handler exposes the order, shipping address and revenue operations
// over HTTP with JSON bodies.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/pkg/httpmiddleware"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// OrderService is the order workflow used by the handlers.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*order.Order, error)
	Cancel(ctx context.Context, id string) error
	ProductsByUser(ctx context.Context, userID int64) ([]product.Product, error)
}

// AddressService manages shipping addresses.
type AddressService interface {
	Add(ctx context.Context, req address.AddRequest) (*address.ShippingAddress, error)
	List(ctx context.Context) ([]address.ShippingAddress, error)
	ListByUser(ctx context.Context, userID int64) ([]address.ShippingAddress, error)
	Delete(ctx context.Context, id int64) error
}

// RevenueService reports revenue per day and per month.
type RevenueService interface {
	ByDay(ctx context.Context) (map[string]decimal.Decimal, error)
	ByMonth(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Handler serves the storefront API.
type Handler struct {
	orders    OrderService
	addresses AddressService
	revenue   RevenueService
}

// New constructs a Handler.
func New(orders OrderService, addresses AddressService, revenue RevenueService) *Handler {
	return &Handler{orders: orders, addresses: addresses, revenue: revenue}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{"POST /api/orders", h.createOrder},
		{"GET /api/orders", h.listOrders},
		{"GET /api/orders/{id}", h.getOrder},
		{"DELETE /api/orders/{id}", h.cancelOrder},
		{"PUT /api/orders/{id}/status", h.updateOrderStatus},
		{"GET /api/orders/user/{userId}", h.listUserOrders},
		{"GET /api/users/{userId}/orders", h.listUserOrders},
		{"GET /api/users/{userId}/products", h.listUserProducts},
		{"POST /api/addresses", h.addAddress},
		{"GET /api/addresses", h.listAddresses},
		{"GET /api/users/{userId}/addresses", h.listUserAddresses},
		{"DELETE /api/addresses/{id}", h.deleteAddress},
		{"GET /api/revenue/daily", h.revenueByDay},
		{"GET /api/revenue/monthly", h.revenueByMonth},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, httpmiddleware.Route(rt.pattern, rt.fn))
	}
}
