package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mochi = retail.Product{ID: "1", Name: "Mochi", UnitPrice: 250, Category: "seasonal"}

func backends(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"redis":  NewRedis(rdb, time.Hour),
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Session(ctx, "s1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Commit(ctx, Change{Session: &Session{ID: "s1", AccountID: "cust-1"}}))

			s, err := st.Session(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), s.Version)
			assert.Equal(t, "cust-1", s.AccountID)
			assert.True(t, s.Cart.IsEmpty())

			s.Cart = retail.AddItem(retail.AddItem(s.Cart, mochi), mochi)
			require.NoError(t, st.Commit(ctx, Change{Session: &s}))

			got, err := st.Session(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.Version)
			assert.Equal(t, retail.Money(500), retail.Total(got.Cart))
		})
	}
}

func TestStore_StaleVersionConflicts(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Commit(ctx, Change{Session: &Session{ID: "s1", AccountID: "a"}}))

			first, err := st.Session(ctx, "s1")
			require.NoError(t, err)
			second := first

			first.Cart = retail.AddItem(first.Cart, mochi)
			require.NoError(t, st.Commit(ctx, Change{Session: &first}))

			err = st.Commit(ctx, Change{Session: &second})
			assert.ErrorIs(t, err, ErrConflict)

			// creating an existing session is a conflict too
			err = st.Commit(ctx, Change{Session: &Session{ID: "s1", AccountID: "b"}})
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestStore_AccountDefaultsAndConflict(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec, err := st.Account(ctx, "cust-1")
			require.NoError(t, err)
			assert.Equal(t, AccountRecord{Account: retail.Account{ID: "cust-1"}}, rec)

			rec.Account.Points = 40
			require.NoError(t, st.Commit(ctx, Change{Accounts: []AccountRecord{rec}}))

			again, err := st.Account(ctx, "cust-1")
			require.NoError(t, err)
			assert.Equal(t, int64(40), again.Account.Points)
			assert.Equal(t, int64(1), again.Version)

			rec.Account.Points = 99
			assert.ErrorIs(t, st.Commit(ctx, Change{Accounts: []AccountRecord{rec}}), ErrConflict)
		})
	}
}

func TestStore_CommitIsAllOrNothing(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Commit(ctx, Change{Session: &Session{ID: "s1", AccountID: "a"}}))
			sess, err := st.Session(ctx, "s1")
			require.NoError(t, err)
			sess.Cart = retail.AddItem(sess.Cart, mochi)
			require.NoError(t, st.Commit(ctx, Change{Session: &sess}))
			sess, err = st.Session(ctx, "s1")
			require.NoError(t, err)

			// account "b" was never stored, so version 3 is stale and nothing may be written
			cleared := sess
			cleared.Cart = retail.Cart{}
			txn := retail.Transaction{ID: "t1", AccountID: "a", Total: 250}
			err = st.Commit(ctx, Change{
				Session: &cleared,
				Accounts: []AccountRecord{
					{Account: retail.Account{ID: "a", Points: 2, History: []string{"t1"}}},
					{Account: retail.Account{ID: "b", Points: 5}, Version: 3},
				},
				Transaction: &txn,
			})
			require.ErrorIs(t, err, ErrConflict)

			after, err := st.Session(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, sess.Version, after.Version)
			assert.Equal(t, 1, after.Cart.Len())

			a, err := st.Account(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, int64(0), a.Account.Points)

			_, err = st.Transaction(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Transaction(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			txn := retail.Transaction{
				ID:        "t1",
				AccountID: "a",
				Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
				Lines:     []retail.CartLine{{ProductID: "1", Name: "Mochi", Quantity: 2, UnitPrice: 250}},
				Total:     500,
			}
			require.NoError(t, st.Commit(ctx, Change{Transaction: &txn}))

			got, err := st.Transaction(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, txn, got)

			assert.ErrorIs(t, st.Commit(ctx, Change{Transaction: &txn}), ErrConflict)
		})
	}
}

func TestStore_RejectsMalformedChange(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := st.Commit(ctx, Change{Accounts: []AccountRecord{
				{Account: retail.Account{ID: "a"}},
				{Account: retail.Account{ID: "a"}},
			}})
			assert.ErrorContains(t, err, "listed twice")

			err = st.Commit(ctx, Change{Session: &Session{}})
			assert.ErrorContains(t, err, "without id")
		})
	}
}

func TestRedis_SessionExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	st := NewRedis(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, st.Commit(ctx, Change{
		Session:  &Session{ID: "s1", AccountID: "a"},
		Accounts: []AccountRecord{{Account: retail.Account{ID: "a", Points: 7}}},
	}))
	mr.FastForward(2 * time.Minute)

	_, err := st.Session(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	a, err := st.Account(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.Account.Points)
}
