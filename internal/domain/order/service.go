package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/inventory"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

const instrumentationName = "github.com/kickzhub/storefront/internal/domain/order"

// TotalPolicy selects how the order total is settled at checkout.
type TotalPolicy string

const (
	// TotalTrust stores the caller-supplied total unchanged.
	TotalTrust TotalPolicy = "trust"
	// TotalVerify recomputes the total from unit prices and rejects mismatches.
	TotalVerify TotalPolicy = "verify"
	// TotalCompute ignores the caller-supplied total and stores the computed one.
	TotalCompute TotalPolicy = "compute"
)

// ErrTotalMismatch is returned under TotalVerify when the supplied total
// differs from the sum of line prices.
var ErrTotalMismatch = errors.New("total amount mismatch")

// TotalMismatchError carries both totals of a rejected checkout.
type TotalMismatchError struct {
	Supplied decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total amount %s does not match computed total %s",
		e.Supplied.StringFixed(2), e.Computed.StringFixed(2))
}

func (e *TotalMismatchError) Unwrap() error { return ErrTotalMismatch }

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	UserID            int64
	ShippingAddressID int64
	Items             []Item
	// Status is the initial status; empty means the configured default.
	Status        string
	Description   string
	PaymentMethod string
	TotalAmount   decimal.Decimal
}

// Options configures a Service.
type Options struct {
	TotalPolicy TotalPolicy
	// RestockOnCancel returns reserved quantities to stock when an order is
	// cancelled. Off by default: cancelling keeps the stock reserved.
	RestockOnCancel bool
	InitialStatus   Status
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.TotalPolicy == "" {
		o.TotalPolicy = TotalVerify
	}
	if o.InitialStatus == "" {
		o.InitialStatus = StatusPending
	}
}

// Service implements order placement and lifecycle operations.
type Service struct {
	store    Store
	orders   Repository
	products product.Repository
	notifier Notifier
	opts     Options
	now      func() time.Time

	tracer          trace.Tracer
	created         metric.Int64Counter
	stockRejections metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	store Store,
	orders Repository,
	products product.Repository,
	notifier Notifier,
	opts Options,
) (*Service, error) {
	opts.setDefaults()
	switch opts.TotalPolicy {
	case TotalTrust, TotalVerify, TotalCompute:
	default:
		return nil, errors.Errorf("unknown total policy %q", opts.TotalPolicy)
	}

	s := &Service{
		store:    store,
		orders:   orders,
		products: products,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		tracer:   noop.NewTracerProvider().Tracer(instrumentationName),
	}
	if opts.TracerProvider != nil {
		s.tracer = opts.TracerProvider.Tracer(instrumentationName)
	}
	if opts.MeterProvider != nil {
		meter := opts.MeterProvider.Meter(instrumentationName)

		var err error
		if s.created, err = meter.Int64Counter("orders.created",
			metric.WithDescription("Orders committed"),
		); err != nil {
			return nil, errors.Wrap(err, "orders.created counter")
		}
		if s.stockRejections, err = meter.Int64Counter("orders.stock_rejections",
			metric.WithDescription("Checkouts rejected for insufficient stock"),
		); err != nil {
			return nil, errors.Wrap(err, "orders.stock_rejections counter")
		}
	}
	return s, nil
}

// Create places an order: it resolves the user and shipping address, reserves
// stock for every line in input order, settles the total and persists the
// order with its items, all in one unit of work. Any failure rolls back every
// reservation made so far. A notification is handed to the Notifier after
// commit; its outcome never affects the result.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.Int64("order.user_id", req.UserID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	o, customer, err := s.create(ctx, req)
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientStock) && s.stockRejections != nil {
			s.stockRejections.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	if s.created != nil {
		s.created.Add(ctx, 1)
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.Int("items", len(o.Items)),
	)

	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, *customer, *o)
	}
	return o, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*Order, *user.User, error) {
	initial, err := s.initialStatus(req.Status)
	if err != nil {
		return nil, nil, err
	}
	if err := validateCreate(req); err != nil {
		return nil, nil, err
	}

	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	var (
		placed   *Order
		customer *user.User
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.Users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}

		addr, err := tx.Addresses.GetByID(ctx, req.ShippingAddressID)
		if err != nil {
			return err
		}
		if addr.UserID != u.ID {
			return apperr.NotFound(apperr.EntityShippingAddress, req.ShippingAddressID)
		}

		ledger := inventory.NewLedger(tx.Stock)
		if err := ledger.Lock(ctx, ids); err != nil {
			return err
		}

		computed := decimal.Zero
		for _, item := range req.Items {
			p, err := ledger.Reserve(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			computed = computed.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		total, err := s.settleTotal(req.TotalAmount, computed.Round(2))
		if err != nil {
			return err
		}

		items := make([]Item, len(req.Items))
		copy(items, req.Items)

		o := &Order{
			ID:                uuid.New().String(),
			UserID:            u.ID,
			ShippingAddressID: addr.ID,
			Items:             items,
			TotalAmount:       total,
			Status:            initial,
			Description:       req.Description,
			PaymentMethod:     req.PaymentMethod,
			CreatedAt:         s.now().UTC(),
		}
		if err := tx.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "persist order")
		}

		placed, customer = o, u
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create order")
	}
	return placed, customer, nil
}

func validateCreate(req CreateRequest) error {
	if len(req.Items) == 0 {
		return apperr.Invalid("items", "items required")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return apperr.Invalid("items", fmt.Sprintf("quantity must be greater than 0 for product %d", item.ProductID))
		}
	}
	if req.TotalAmount.IsNegative() {
		return apperr.Invalid("totalAmount", "must not be negative")
	}
	return checkAmount(req.TotalAmount)
}

// MaxTotal is the exclusive upper bound of an order total; totals are stored
// with two decimal places in a NUMERIC(14,2) column.
var MaxTotal = decimal.New(1, 12)

func checkAmount(v decimal.Decimal) error {
	if !v.Equal(v.Round(2)) {
		return apperr.Invalid("totalAmount", "at most two decimal places allowed")
	}
	if v.GreaterThanOrEqual(MaxTotal) {
		return apperr.Invalid("totalAmount", "must be less than "+MaxTotal.String())
	}
	return nil
}

func (s *Service) initialStatus(raw string) (Status, error) {
	if raw == "" {
		return s.opts.InitialStatus, nil
	}
	return ParseStatus(raw)
}

func (s *Service) settleTotal(supplied, computed decimal.Decimal) (decimal.Decimal, error) {
	switch s.opts.TotalPolicy {
	case TotalTrust:
		return supplied, nil
	case TotalCompute:
		if err := checkAmount(computed); err != nil {
			return decimal.Zero, err
		}
		return computed, nil
	default:
		if !supplied.Round(2).Equal(computed) {
			return decimal.Zero, &TotalMismatchError{Supplied: supplied, Computed: computed}
		}
		return computed, nil
	}
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListByUser returns a user's orders, oldest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	out, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by user")
	}
	return out, nil
}

// List returns every order, oldest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	out, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return out, nil
}

// UpdateStatus overwrites the status of an order. No transition rules apply:
// any status may follow any other, and repeating a call is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var updated *Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		o.Status = st
		if err := tx.Orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", id),
		zap.String("status", st.String()),
		zap.Bool("known", st.Known()),
	)
	return updated, nil
}

// Cancel moves an order to the terminal rejected status. Reserved stock stays
// reserved unless RestockOnCancel is enabled, in which case it is released
// exactly once per order.
func (s *Service) Cancel(ctx context.Context, id string) error {
	var released bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		o.Status = StatusRejected

		if s.opts.RestockOnCancel && !o.Restocked {
			ledger := inventory.NewLedger(tx.Stock)
			ids := make([]int64, len(o.Items))
			for i, item := range o.Items {
				ids[i] = item.ProductID
			}
			if err := ledger.Lock(ctx, ids); err != nil {
				return err
			}
			for _, item := range o.Items {
				if _, err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
					return errors.Wrapf(err, "release product %d", item.ProductID)
				}
			}
			o.Restocked = true
			released = true
		}

		if err := tx.Orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}

	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", id),
		zap.Bool("restocked", released),
	)
	return nil
}

// ProductsByUser returns the distinct products a user has ordered, in the
// order they were first purchased.
func (s *Service) ProductsByUser(ctx context.Context, userID int64) ([]product.Product, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by user")
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, o := range orders {
		for _, item := range o.Items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return []product.Product{}, nil
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
