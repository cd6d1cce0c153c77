package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ order.Store   = (*Store)(nil)
	_ address.Store = (*Store)(nil)
)

// Store owns the pool and hands out repositories bound either to the pool or
// to a single transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn in a read-committed transaction. Row locks taken through the
// Tx repositories are held until fn returns.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, order.Tx{
			Users:     &UserRepository{q: tx},
			Addresses: &AddressRepository{q: tx},
			Stock:     &ProductRepository{q: tx},
			Orders:    &OrderRepository{q: tx},
		})
	})
}

// InAddressTx runs fn with an address repository bound to one transaction.
func (s *Store) InAddressTx(ctx context.Context, fn func(ctx context.Context, repo address.Repository) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &AddressRepository{q: tx})
	})
}

// Users returns a pool-bound user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{q: s.pool} }

// Addresses returns a pool-bound address repository.
func (s *Store) Addresses() *AddressRepository { return &AddressRepository{q: s.pool} }

// Products returns a pool-bound product repository.
func (s *Store) Products() *ProductRepository { return &ProductRepository{q: s.pool} }

// Orders returns a pool-bound order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{q: s.pool} }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Backend exposes the store as a storage.Backend.
func (s *Store) Backend() storage.Backend {
	orders := s.Orders()
	return storage.Backend{
		Orders:    orders,
		OrderTx:   s,
		Addresses: s.Addresses(),
		AddressTx: s,
		Products:  s.Products(),
		Users:     s.Users(),
		Revenue:   orders,
		Seeder:    s,
		Ping:      s.Ping,
		Close:     s.Close,
	}
}
