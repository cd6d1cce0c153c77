package order

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// --- In-memory store ---

// memStore serializes units of work with a mutex and applies a unit's writes
// only when it succeeds.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]user.User
	addresses map[int64]address.ShippingAddress
	products  map[int64]product.Product
	orders    map[string]Order
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[int64]user.User),
		addresses: make(map[int64]address.ShippingAddress),
		products:  make(map[int64]product.Product),
		orders:    make(map[string]Order),
	}
}

type memTx struct {
	s        *memStore
	products map[int64]product.Product
	orders   map[string]Order
}

func (t *memTx) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityUser, id)
	}
	return &u, nil
}

func (t *memTx) addressByID(id int64) (*address.ShippingAddress, error) {
	a, ok := t.s.addresses[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityShippingAddress, id)
	}
	return &a, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*product.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityProduct, id)
	}
	return &p, nil
}

func (t *memTx) SetStock(_ context.Context, id int64, stock int) error {
	p := t.products[id]
	p.Stock = stock
	t.products[id] = p
	return nil
}

// memTx serves users and stock directly; addresses and orders clash on method
// names, so they get small adapters.

type memAddressReader struct{ t *memTx }

func (r memAddressReader) GetByID(_ context.Context, id int64) (*address.ShippingAddress, error) {
	return r.t.addressByID(id)
}

type memOrders struct{ t *memTx }

func (r memOrders) Create(_ context.Context, o *Order) error {
	if r.t.s.createErr != nil {
		return r.t.s.createErr
	}
	r.t.orders[o.ID] = *o
	return nil
}

func (r memOrders) GetForUpdate(_ context.Context, id string) (*Order, error) {
	o, ok := r.t.orders[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityOrder, id)
	}
	return &o, nil
}

func (r memOrders) Save(_ context.Context, o *Order) error {
	r.t.orders[o.ID] = *o
	return nil
}

// txStore wires the adapters above into a Store.
type txStore struct{ *memStore }

var (
	_ Store      = txStore{}
	_ Repository = txStore{}
)

func (s txStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{s: s.memStore, products: maps.Clone(s.products), orders: maps.Clone(s.orders)}
	err := fn(ctx, Tx{
		Users:     t,
		Addresses: memAddressReader{t},
		Stock:     t,
		Orders:    memOrders{t},
	})
	if err != nil {
		return err
	}
	s.products, s.orders = t.products, t.orders
	return nil
}

// Read side used outside units of work.

func (s txStore) GetByID(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityOrder, id)
	}
	return &o, nil
}

func (s txStore) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s txStore) List(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

type memProducts struct{ s *memStore }

func (r memProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityProduct, id)
	}
	return &p, nil
}

func (r memProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	placed []Order
	emails []string
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, customer user.User, o Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, o)
	n.emails = append(n.emails, customer.Email)
}

// --- Helpers ---

type fixture struct {
	mem      *memStore
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	mem := newMemStore()
	mem.users[1] = user.User{ID: 1, Name: "Linh", Email: "linh@example.com"}
	mem.users[2] = user.User{ID: 2, Name: "Minh", Email: "minh@example.com"}
	mem.addresses[10] = address.ShippingAddress{ID: 10, UserID: 1, Line: "12 Le Loi", City: "Hue"}
	mem.addresses[20] = address.ShippingAddress{ID: 20, UserID: 2, Line: "3 Tran Phu", City: "Hanoi"}
	mem.products[100] = product.Product{ID: 100, Name: "Runner", Price: decimal.RequireFromString("50.00"), Stock: 10}
	mem.products[200] = product.Product{ID: 200, Name: "Court", Price: decimal.RequireFromString("80.00"), Stock: 3}

	store := txStore{mem}
	n := &recordingNotifier{}
	opts.MeterProvider = noop.NewMeterProvider()
	svc, err := NewService(store, store, memProducts{mem}, n, opts)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

	return &fixture{mem: mem, notifier: n, svc: svc}
}

func (f *fixture) stock(id int64) int {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()
	return f.mem.products[id].Stock
}

func validRequest() CreateRequest {
	return CreateRequest{
		UserID:            1,
		ShippingAddressID: 10,
		Items: []Item{
			{ProductID: 100, Quantity: 2},
			{ProductID: 200, Quantity: 1},
		},
		Description:   "gift wrap",
		PaymentMethod: "cod",
		TotalAmount:   decimal.RequireFromString("180.00"),
	}
}

// --- Tests ---

func TestCreate_DecrementsStockAndPersists(t *testing.T) {
	f := newFixture(t, Options{})

	o, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("180.00").Equal(o.TotalAmount))
	assert.Equal(t, "gift wrap", o.Description)
	assert.Equal(t, "cod", o.PaymentMethod)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), o.CreatedAt)
	assert.Len(t, o.Items, 2)

	assert.Equal(t, 8, f.stock(100))
	assert.Equal(t, 2, f.stock(200))

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)

	require.Len(t, f.notifier.placed, 1)
	assert.Equal(t, o.ID, f.notifier.placed[0].ID)
	assert.Equal(t, "linh@example.com", f.notifier.emails[0])
}

func TestCreate_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalTrust})

	req := validRequest()
	req.Items = []Item{
		{ProductID: 100, Quantity: 4},
		{ProductID: 200, Quantity: 5},
	}

	_, err := f.svc.Create(context.Background(), req)

	var isErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, int64(200), isErr.ProductID)
	assert.Equal(t, 10, f.stock(100), "earlier reservation must be rolled back")
	assert.Equal(t, 3, f.stock(200))

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.placed)
}

func TestCreate_DuplicateLinesReserveCumulatively(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalTrust})

	req := validRequest()
	req.Items = []Item{
		{ProductID: 200, Quantity: 2},
		{ProductID: 200, Quantity: 2},
	}

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 3, f.stock(200))
}

func TestCreate_NotFound(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*CreateRequest)
		wantEntity string
	}{
		{
			name:       "user",
			mutate:     func(r *CreateRequest) { r.UserID = 99 },
			wantEntity: apperr.EntityUser,
		},
		{
			name:       "shipping address",
			mutate:     func(r *CreateRequest) { r.ShippingAddressID = 99 },
			wantEntity: apperr.EntityShippingAddress,
		},
		{
			name:       "address of another user",
			mutate:     func(r *CreateRequest) { r.ShippingAddressID = 20 },
			wantEntity: apperr.EntityShippingAddress,
		},
		{
			name: "product",
			mutate: func(r *CreateRequest) {
				r.Items = append(r.Items, Item{ProductID: 999, Quantity: 1})
			},
			wantEntity: apperr.EntityProduct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{TotalPolicy: TotalTrust})
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.Create(context.Background(), req)

			var nfErr *apperr.NotFoundError
			require.ErrorAs(t, err, &nfErr)
			assert.Equal(t, tt.wantEntity, nfErr.Entity)
			assert.Equal(t, 10, f.stock(100))
			assert.Equal(t, 3, f.stock(200))
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{name: "no items", mutate: func(r *CreateRequest) { r.Items = nil }},
		{name: "zero quantity", mutate: func(r *CreateRequest) { r.Items[0].Quantity = 0 }},
		{name: "negative total", mutate: func(r *CreateRequest) { r.TotalAmount = decimal.NewFromInt(-1) }},
		{name: "blank status", mutate: func(r *CreateRequest) { r.Status = "   " }},
		{name: "sub-cent total", mutate: func(r *CreateRequest) { r.TotalAmount = decimal.RequireFromString("10.555") }},
		{name: "total too large", mutate: func(r *CreateRequest) { r.TotalAmount = MaxTotal }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.Create(context.Background(), req)
			require.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}
}

func TestCreate_TotalPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    TotalPolicy
		supplied  string
		wantTotal string
		wantErr   error
	}{
		{name: "trust keeps caller total", policy: TotalTrust, supplied: "1.00", wantTotal: "1.00"},
		{name: "verify accepts matching total", policy: TotalVerify, supplied: "180", wantTotal: "180.00"},
		{name: "verify rejects mismatch", policy: TotalVerify, supplied: "170.00", wantErr: ErrTotalMismatch},
		{name: "compute overrides caller total", policy: TotalCompute, supplied: "0", wantTotal: "180.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{TotalPolicy: tt.policy})
			req := validRequest()
			req.TotalAmount = decimal.RequireFromString(tt.supplied)

			o, err := f.svc.Create(context.Background(), req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 10, f.stock(100))
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantTotal).Equal(o.TotalAmount),
				"expected total %s, got %s", tt.wantTotal, o.TotalAmount)
		})
	}
}

func TestCreate_TrustPolicyStoresCents(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalTrust})
	req := validRequest()
	req.TotalAmount = decimal.RequireFromString("10.500")

	o, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "10.50", o.TotalAmount.StringFixed(2))
}

func TestCreate_ComputedTotalTooLarge(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalCompute})
	f.mem.products[100] = product.Product{ID: 100, Name: "Grail", Price: decimal.New(2, 11), Stock: 10}

	req := validRequest()
	req.Items = []Item{{ProductID: 100, Quantity: 5}}

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, apperr.ErrInvalid)
	assert.Equal(t, 10, f.stock(100))
	assert.Empty(t, f.notifier.placed)
}

func TestCreate_InitialStatus(t *testing.T) {
	f := newFixture(t, Options{InitialStatus: StatusConfirmed})

	o, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)

	req := validRequest()
	req.Status = "awaiting-payment"
	o, err = f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Status("awaiting-payment"), o.Status)
}

func TestCreate_PersistError(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.createErr = errors.New("db write failed")

	_, err := f.svc.Create(context.Background(), validRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 10, f.stock(100))
	assert.Empty(t, f.notifier.placed)
}

func TestCreate_ConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalTrust})

	// Stock of product 100 is 10; each request asks for 10/2+1.
	req := validRequest()
	req.Items = []Item{{ProductID: 100, Quantity: 6}}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Create(context.Background(), req)
		}()
	}
	close(start)
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 4, f.stock(100))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, Options{})
	o, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	first, err := f.svc.UpdateStatus(context.Background(), o.ID, "SHIPPED")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, first.Status)

	second, err := f.svc.UpdateStatus(context.Background(), o.ID, "SHIPPED")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	custom, err := f.svc.UpdateStatus(context.Background(), o.ID, "held at customs")
	require.NoError(t, err)
	assert.Equal(t, Status("held at customs"), custom.Status)
	assert.False(t, custom.Status.Known())

	_, err = f.svc.UpdateStatus(context.Background(), "missing", "shipped")
	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, apperr.EntityOrder, nfErr.Entity)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, "")
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestCancel_KeepsStockByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	o, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), o.ID))

	got, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.False(t, got.Restocked)
	assert.Equal(t, 8, f.stock(100))
	assert.Equal(t, 2, f.stock(200))
}

func TestCancel_RestockOnce(t *testing.T) {
	f := newFixture(t, Options{RestockOnCancel: true})
	o, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), o.ID))
	require.NoError(t, f.svc.Cancel(context.Background(), o.ID))

	got, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.True(t, got.Restocked)
	assert.Equal(t, 10, f.stock(100))
	assert.Equal(t, 3, f.stock(200))
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.svc.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProductsByUser(t *testing.T) {
	f := newFixture(t, Options{TotalPolicy: TotalTrust})

	_, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	req := validRequest()
	req.Items = []Item{{ProductID: 100, Quantity: 1}}
	_, err = f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	got, err := f.svc.ProductsByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []int64{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []int64{100, 200}, ids)

	none, err := f.svc.ProductsByUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewService_UnknownPolicy(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, Options{TotalPolicy: "guess"})
	require.Error(t, err)
}
