// Package storagetest holds a conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/revenue"
	"github.com/kickzhub/storefront/internal/domain/user"
	"github.com/kickzhub/storefront/internal/storage"
)

// Fixture ids seeded by Seed.
const (
	UserAda       int64 = 1
	UserGrace     int64 = 2
	AddressAda    int64 = 10
	AddressGrace  int64 = 20
	ProductRunner int64 = 100
	ProductCourt  int64 = 200
)

var seededAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// Seed loads the fixture every suite test starts from.
func Seed(t *testing.T, b storage.Backend) {
	t.Helper()
	err := b.Seeder.Seed(context.Background(),
		[]user.User{
			{ID: UserAda, Name: "Ada", Email: "ada@example.com"},
			{ID: UserGrace, Name: "Grace", Email: "grace@example.com"},
		},
		[]address.ShippingAddress{
			{ID: AddressAda, UserID: UserAda, Recipient: "Ada", Line: "1 Analytical St", City: "London", CreatedAt: seededAt},
			{ID: AddressGrace, UserID: UserGrace, Recipient: "Grace", Line: "2 Compiler Ave", City: "Arlington", CreatedAt: seededAt},
		},
		[]product.Product{
			{ID: ProductRunner, Name: "Runner", Price: decimal.RequireFromString("50.00"), Stock: 10},
			{ID: ProductCourt, Name: "Court", Price: decimal.RequireFromString("80.00"), Stock: 3},
		},
	)
	require.NoError(t, err)
}

// Run executes the suite. open must return an empty, migrated backend.
func Run(t *testing.T, open func(t *testing.T) storage.Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"SeedReadBack", testSeedReadBack},
		{"CreateOrder", testCreateOrder},
		{"InsufficientStockRollsBack", testInsufficientStockRollsBack},
		{"ConcurrentReservations", testConcurrentReservations},
		{"UpdateStatus", testUpdateStatus},
		{"CancelRestock", testCancelRestock},
		{"OrderNotFound", testOrderNotFound},
		{"AddressLifecycle", testAddressLifecycle},
		{"AddressDeleteConflict", testAddressDeleteConflict},
		{"RevenueEntries", testRevenueEntries},
		{"ProductsByIDs", testProductsByIDs},
		{"NegativeStockRejected", testNegativeStockRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			Seed(t, b)
			tt.fn(t, b)
		})
	}
}

func newService(t *testing.T, b storage.Backend, opts order.Options) *order.Service {
	t.Helper()
	svc, err := order.NewService(b.OrderTx, b.Orders, b.Products, nil, opts)
	require.NoError(t, err)
	return svc
}

func request(items ...order.Item) order.CreateRequest {
	return order.CreateRequest{
		UserID:            UserAda,
		ShippingAddressID: AddressAda,
		Items:             items,
		PaymentMethod:     "card",
	}
}

func stockOf(t *testing.T, b storage.Backend, id int64) int {
	t.Helper()
	p, err := b.Products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func testSeedReadBack(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	u, err := b.Users.GetByID(ctx, UserGrace)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", u.Email)

	a, err := b.Addresses.GetByID(ctx, AddressAda)
	require.NoError(t, err)
	assert.Equal(t, UserAda, a.UserID)
	assert.Equal(t, "London", a.City)
	assert.True(t, seededAt.Equal(a.CreatedAt))

	p, err := b.Products.GetByID(ctx, ProductRunner)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50").Equal(p.Price))
	assert.Equal(t, 10, p.Stock)

	_, err = b.Users.GetByID(ctx, 999)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testCreateOrder(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})

	placed, err := svc.Create(ctx, request(
		order.Item{ProductID: ProductRunner, Quantity: 2},
		order.Item{ProductID: ProductCourt, Quantity: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, "180.00", placed.TotalAmount.StringFixed(2))

	assert.Equal(t, 8, stockOf(t, b, ProductRunner))
	assert.Equal(t, 2, stockOf(t, b, ProductCourt))

	got, err := b.Orders.GetByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)
	assert.Equal(t, UserAda, got.UserID)
	assert.Equal(t, AddressAda, got.ShippingAddressID)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, "card", got.PaymentMethod)
	assert.True(t, placed.TotalAmount.Equal(got.TotalAmount))
	assert.Equal(t, placed.Items, got.Items)
	assert.WithinDuration(t, placed.CreatedAt, got.CreatedAt, time.Millisecond)

	byUser, err := b.Orders.ListByUser(ctx, UserAda)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Len(t, byUser[0].Items, 2)

	none, err := b.Orders.ListByUser(ctx, UserGrace)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := b.Orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testInsufficientStockRollsBack(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})

	_, err := svc.Create(ctx, request(
		order.Item{ProductID: ProductRunner, Quantity: 4},
		order.Item{ProductID: ProductCourt, Quantity: 5},
	))
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	var stockErr *apperr.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, ProductCourt, stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Available)

	assert.Equal(t, 10, stockOf(t, b, ProductRunner), "earlier line must be rolled back")
	assert.Equal(t, 3, stockOf(t, b, ProductCourt))

	all, err := b.Orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testConcurrentReservations(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})

	const workers = 2
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, request(order.Item{ProductID: ProductRunner, Quantity: 6}))
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 4, stockOf(t, b, ProductRunner))
}

func testUpdateStatus(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})

	placed, err := svc.Create(ctx, request(order.Item{ProductID: ProductCourt, Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, placed.ID, "Shipped")
	require.NoError(t, err)
	got, err := b.Orders.GetByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)

	_, err = svc.UpdateStatus(ctx, placed.ID, "awaiting-pickup")
	require.NoError(t, err)
	got, err = b.Orders.GetByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Status("awaiting-pickup"), got.Status)
	assert.False(t, got.Status.Known())
}

func testCancelRestock(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute, RestockOnCancel: true})

	placed, err := svc.Create(ctx, request(order.Item{ProductID: ProductRunner, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 7, stockOf(t, b, ProductRunner))

	require.NoError(t, svc.Cancel(ctx, placed.ID))
	require.NoError(t, svc.Cancel(ctx, placed.ID))

	assert.Equal(t, 10, stockOf(t, b, ProductRunner), "restocked exactly once")
	got, err := b.Orders.GetByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, got.Status)
	assert.True(t, got.Restocked)
}

func testOrderNotFound(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	for _, id := range []string{"00000000-0000-4000-8000-000000000000", "not-a-uuid"} {
		_, err := b.Orders.GetByID(ctx, id)
		require.ErrorIs(t, err, apperr.ErrNotFound, id)

		var nf *apperr.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, apperr.EntityOrder, nf.Entity)
	}
}

func testAddressLifecycle(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := address.NewService(b.AddressTx, b.Addresses, b.Users)

	added, err := svc.Add(ctx, address.AddRequest{
		UserID: UserGrace,
		Line:   "3 Harbor Rd",
		City:   "Norfolk",
	})
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.NotEqual(t, AddressGrace, added.ID)

	list, err := svc.ListByUser(ctx, UserGrace)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, added.ID))
	_, err = b.Addresses.GetByID(ctx, added.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	err = svc.Delete(ctx, added.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testAddressDeleteConflict(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	orders := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})
	_, err := orders.Create(ctx, request(order.Item{ProductID: ProductCourt, Quantity: 1}))
	require.NoError(t, err)

	err = address.NewService(b.AddressTx, b.Addresses, b.Users).Delete(ctx, AddressAda)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// The foreign key backs up the service-level check.
	err = b.Addresses.Delete(ctx, AddressAda)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = b.Addresses.GetByID(ctx, AddressAda)
	require.NoError(t, err)
}

func testRevenueEntries(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	svc := newService(t, b, order.Options{TotalPolicy: order.TotalCompute})

	_, err := svc.Create(ctx, request(order.Item{ProductID: ProductRunner, Quantity: 2}))
	require.NoError(t, err)
	_, err = svc.Create(ctx, request(order.Item{ProductID: ProductRunner, Quantity: 1}))
	require.NoError(t, err)

	days, err := revenue.NewAggregator(b.Revenue, time.UTC).ByDay(ctx)
	require.NoError(t, err)
	require.Len(t, days, 1)
	for _, total := range days {
		assert.Equal(t, "150.00", total.StringFixed(2))
	}
}

func testProductsByIDs(t *testing.T, b storage.Backend) {
	ps, err := b.Products.GetByIDs(context.Background(), []int64{ProductCourt, 404, ProductRunner})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, ProductRunner, ps[0].ID)
	assert.Equal(t, ProductCourt, ps[1].ID)
}

func testNegativeStockRejected(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	err := b.OrderTx.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Stock.SetStock(ctx, ProductCourt, -2)
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "negative stock rejected")

	p, err := b.Products.GetByID(ctx, ProductCourt)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}
