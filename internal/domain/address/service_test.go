package address

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/user"
)

type memUsers map[int64]user.User

func (m memUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityUser, id)
	}
	return &u, nil
}

type memRepo struct {
	nextID    int64
	addresses map[int64]ShippingAddress
	refs      map[int64]int
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, addresses: map[int64]ShippingAddress{}, refs: map[int64]int{}}
}

func (r *memRepo) Create(_ context.Context, a *ShippingAddress) error {
	a.ID = r.nextID
	r.nextID++
	r.addresses[a.ID] = *a
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*ShippingAddress, error) {
	a, ok := r.addresses[id]
	if !ok {
		return nil, apperr.NotFound(apperr.EntityShippingAddress, id)
	}
	return &a, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID int64) ([]ShippingAddress, error) {
	var out []ShippingAddress
	for id := int64(1); id < r.nextID; id++ {
		if a, ok := r.addresses[id]; ok && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) List(_ context.Context) ([]ShippingAddress, error) {
	var out []ShippingAddress
	for id := int64(1); id < r.nextID; id++ {
		if a, ok := r.addresses[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	delete(r.addresses, id)
	return nil
}

func (r *memRepo) CountOrders(_ context.Context, id int64) (int, error) {
	return r.refs[id], nil
}

type memStore struct {
	repo *memRepo
	txs  int
}

func (s *memStore) InAddressTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.txs++
	return fn(ctx, s.repo)
}

func newTestService() (*Service, *memRepo, *memStore) {
	repo := newMemRepo()
	store := &memStore{repo: repo}
	svc := NewService(store, repo, memUsers{1: {ID: 1, Name: "Ada"}, 2: {ID: 2, Name: "Grace"}})
	svc.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	}
	return svc, repo, store
}

func TestService_Add(t *testing.T) {
	svc, repo, _ := newTestService()

	a, err := svc.Add(context.Background(), AddRequest{
		UserID:    1,
		Recipient: "  Ada Lovelace ",
		Line:      " 12 Marylebone Rd ",
		City:      "London",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, "Ada Lovelace", a.Recipient)
	assert.Equal(t, "12 Marylebone Rd", a.Line)
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
	assert.Equal(t, 8, a.CreatedAt.Hour())
	assert.Contains(t, repo.addresses, a.ID)
}

func TestService_AddErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    AddRequest
		target error
	}{
		{"EmptyLine", AddRequest{UserID: 1, Line: "   "}, apperr.ErrInvalid},
		{"UnknownUser", AddRequest{UserID: 99, Line: "x"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()

			_, err := svc.Add(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.target)
			assert.Empty(t, repo.addresses)
		})
	}
}

func TestService_List(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for _, req := range []AddRequest{
		{UserID: 1, Line: "a"},
		{UserID: 2, Line: "b"},
		{UserID: 1, Line: "c"},
	} {
		_, err := svc.Add(ctx, req)
		require.NoError(t, err)
	}

	mine, err := svc.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a", mine[0].Line)
	assert.Equal(t, "c", mine[1].Line)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Unreferenced", func(t *testing.T) {
		svc, repo, store := newTestService()
		a, err := svc.Add(ctx, AddRequest{UserID: 1, Line: "a"})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, a.ID))
		assert.NotContains(t, repo.addresses, a.ID)
		assert.Equal(t, 1, store.txs)
	})
	t.Run("Referenced", func(t *testing.T) {
		svc, repo, _ := newTestService()
		a, err := svc.Add(ctx, AddRequest{UserID: 1, Line: "a"})
		require.NoError(t, err)
		repo.refs[a.ID] = 2

		err = svc.Delete(ctx, a.ID)
		require.ErrorIs(t, err, apperr.ErrConflict)

		var conflict *apperr.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, apperr.EntityShippingAddress, conflict.Entity)
		assert.Equal(t, "1", conflict.ID)
		assert.Contains(t, repo.addresses, a.ID)
	})
	t.Run("Missing", func(t *testing.T) {
		svc, _, _ := newTestService()
		require.ErrorIs(t, svc.Delete(ctx, 42), apperr.ErrNotFound)
	})
}
