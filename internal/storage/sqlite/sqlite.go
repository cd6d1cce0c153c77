// Package sqlite implements the storefront repositories on an embedded SQLite
// database. All access goes through a single connection, so transactions are
// serialized and stock reservations cannot interleave.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kickzhub/storefront/db"
	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/storage"
)

const driverName = "sqlite"

// querier is an interface that both *sql.DB and *sql.Tx implement.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ order.Store   = (*Store)(nil)
	_ address.Store = (*Store)(nil)
)

// Store owns the database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")

	conn, err := sql.Open(driverName, "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.ExecContext(ctx, db.SQLiteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: conn}, nil
}

// InTx runs fn in one transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
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
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &AddressRepository{q: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Users returns a user repository outside any transaction.
func (s *Store) Users() *UserRepository { return &UserRepository{q: s.db} }

// Addresses returns an address repository outside any transaction.
func (s *Store) Addresses() *AddressRepository { return &AddressRepository{q: s.db} }

// Products returns a product repository outside any transaction.
func (s *Store) Products() *ProductRepository { return &ProductRepository{q: s.db} }

// Orders returns an order repository outside any transaction.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{q: s.db} }

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
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

func isConstraint(err error, code int, text string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == code {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), text)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY")
}

func isCheckViolation(err error) bool {
	return isConstraint(err, sqlite3.SQLITE_CONSTRAINT_CHECK, "CHECK")
}

// timeLayout is fixed width so that stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
