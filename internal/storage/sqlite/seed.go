package sqlite

import (
	"context"
	"database/sql"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

// Seed upserts fixture rows with explicit ids in one transaction.
func (s *Store) Seed(
	ctx context.Context,
	users []user.User,
	addrs []address.ShippingAddress,
	products []product.Product,
) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		ur := &UserRepository{q: tx}
		for _, u := range users {
			if err := ur.Upsert(ctx, u); err != nil {
				return err
			}
		}
		ar := &AddressRepository{q: tx}
		for _, a := range addrs {
			if err := ar.Upsert(ctx, a); err != nil {
				return err
			}
		}
		pr := &ProductRepository{q: tx}
		for _, p := range products {
			if err := pr.Upsert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
