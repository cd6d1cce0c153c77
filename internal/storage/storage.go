// Package storage bundles the repositories of one database backend.
package storage

import (
	"context"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/revenue"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// Seeder loads fixture rows with explicit ids.
type Seeder interface {
	Seed(ctx context.Context, users []user.User, addrs []address.ShippingAddress, products []product.Product) error
}

// Backend is everything the services need from a database.
type Backend struct {
	Orders    order.Repository
	OrderTx   order.Store
	Addresses address.Repository
	AddressTx address.Store
	Products  product.Repository
	Users     user.Repository
	Revenue   revenue.Source
	Seeder    Seeder

	Ping  func(ctx context.Context) error
	Close func() error
}
