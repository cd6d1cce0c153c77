package address

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// AddRequest holds the input for registering a shipping address.
type AddRequest struct {
	UserID    int64
	Recipient string
	Phone     string
	Line      string
	City      string
}

// Service manages shipping addresses and guards their deletion.
type Service struct {
	store Store
	repo  Repository
	users user.Repository
	now   func() time.Time
}

// NewService creates an address Service.
func NewService(store Store, repo Repository, users user.Repository) *Service {
	return &Service{
		store: store,
		repo:  repo,
		users: users,
		now:   time.Now,
	}
}

// Add validates and stores a new address for an existing user.
func (s *Service) Add(ctx context.Context, req AddRequest) (*ShippingAddress, error) {
	if strings.TrimSpace(req.Line) == "" {
		return nil, apperr.Invalid("line", "address line required")
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "resolve user")
	}

	a := &ShippingAddress{
		UserID:    req.UserID,
		Recipient: strings.TrimSpace(req.Recipient),
		Phone:     strings.TrimSpace(req.Phone),
		Line:      strings.TrimSpace(req.Line),
		City:      strings.TrimSpace(req.City),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create address")
	}
	return a, nil
}

// ListByUser returns every address owned by the user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]ShippingAddress, error) {
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses by user")
	}
	return out, nil
}

// List returns all addresses.
func (s *Service) List(ctx context.Context) ([]ShippingAddress, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return out, nil
}

// Delete removes an address unless an order still references it. The check
// and the delete share one transaction so an order created in between cannot
// be left pointing at a removed row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.InAddressTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetByID(ctx, id); err != nil {
			return err
		}
		n, err := repo.CountOrders(ctx, id)
		if err != nil {
			return errors.Wrap(err, "count referencing orders")
		}
		if n > 0 {
			return &apperr.ConflictError{
				Entity: apperr.EntityShippingAddress,
				ID:     strconv.FormatInt(id, 10),
				Reason: "referenced by existing orders",
			}
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	zctx.From(ctx).Info("Shipping address deleted", zap.Int64("address_id", id))
	return nil
}
