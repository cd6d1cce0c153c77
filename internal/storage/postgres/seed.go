package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

var seededTables = []string{"users", "shipping_addresses", "products"}

// Seed upserts fixture rows with explicit ids in one transaction and moves
// each id sequence past the highest seeded id.
func (s *Store) Seed(
	ctx context.Context,
	users []user.User,
	addrs []address.ShippingAddress,
	products []product.Product,
) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
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

		for _, table := range seededTables {
			sql := fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM %[1]s`,
				table,
			)
			if _, err := tx.Exec(ctx, sql); err != nil {
				return fmt.Errorf("resetting sequence of %s: %w", table, err)
			}
		}
		return nil
	})
}
