package shop

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/ariefcatur/go-retail-loyalty/internal/store"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedMessage struct {
	key     string
	env     retail.Envelope
	headers []kafkago.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []recordedMessage
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var env retail.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, recordedMessage{key: string(key), env: env, headers: headers})
}

func (f *fakePublisher) all() []recordedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedMessage, len(f.msgs))
	copy(out, f.msgs)
	return out
}

// flakyStore fails the first n commits with ErrConflict.
type flakyStore struct {
	store.Store
	mu        sync.Mutex
	conflicts int
}

func (f *flakyStore) Commit(ctx context.Context, ch store.Change) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return store.ErrConflict
	}
	f.mu.Unlock()
	return f.Store.Commit(ctx, ch)
}

type fixture struct {
	svc    *Service
	txns   *fakePublisher
	points *fakePublisher
}

func newFixture(t *testing.T, st store.Store) fixture {
	t.Helper()
	cat, err := retail.NewCatalog([]retail.Product{
		{ID: "1", Name: "Mochi", UnitPrice: 250, Category: "seasonal"},
		{ID: "2", Name: "Matcha Dorayaki", UnitPrice: 300, Category: "classic"},
	})
	require.NoError(t, err)
	rewards, err := retail.NewRewards(retail.DefaultRewards)
	require.NoError(t, err)

	ledger := retail.Ledger{Tiers: retail.DefaultTiers}
	f := fixture{txns: &fakePublisher{}, points: &fakePublisher{}}
	f.svc = &Service{
		Catalog: cat,
		Rewards: rewards,
		Ledger:  ledger,
		Processor: retail.Processor{
			AccrualBPS: retail.DefaultAccrualBPS,
			Ledger:     ledger,
			Now:        func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
		},
		Store:        st,
		Transactions: f.txns,
		Points:       f.points,
		Log:          zap.NewNop(),
		ServiceName:  "retail-api-test",
		Retries:      5,
	}
	return f
}

func TestService_MochiScenario(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := WithTraceID(context.Background(), "req-1")

	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, sess.ID, "1")
	require.NoError(t, err)
	sess, err = f.svc.AddItem(ctx, sess.ID, "1")
	require.NoError(t, err)
	require.Equal(t, retail.Money(500), retail.Total(sess.Cart))

	res, err := f.svc.Checkout(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, retail.Money(500), res.Transaction.Total)
	assert.Equal(t, int64(5), res.Transaction.PointsEarned)
	assert.True(t, res.Session.Cart.IsEmpty())
	assert.Equal(t, int64(5), res.Account.Points)
	assert.Equal(t, "copper", res.Account.Tier)
	assert.Equal(t, []string{res.Transaction.ID}, res.Account.History)

	stored, err := f.svc.Transaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction, stored)

	cur, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, cur.Cart.IsEmpty())

	txMsgs := f.txns.all()
	require.Len(t, txMsgs, 1)
	assert.Equal(t, "cust-1", txMsgs[0].key)
	assert.Equal(t, retail.EventTransactionCompleted, txMsgs[0].env.EventType)
	assert.Equal(t, "req-1", txMsgs[0].env.TraceID)
	assert.Equal(t, "retail-api-test", txMsgs[0].env.Producer)

	ptMsgs := f.points.all()
	require.Len(t, ptMsgs, 1)
	var p retail.PointsChangedPayload
	require.NoError(t, json.Unmarshal(ptMsgs[0].env.Payload, &p))
	assert.Equal(t, retail.PointsChangedPayload{
		AccountID: "cust-1", Delta: 5, Balance: 5, Tier: "copper",
		Reason: retail.ReasonPurchase, Ref: res.Transaction.ID, At: p.At,
	}, p)
}

func TestService_DuplicateCheckoutRejected(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, sess.ID, "2")
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, sess.ID)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, sess.ID)
	assert.ErrorIs(t, err, retail.ErrEmptyCart)

	acct, err := f.svc.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, acct.History, 1)
	assert.Equal(t, int64(3), acct.Points)
	assert.Len(t, f.txns.all(), 1)
}

func TestService_ConcurrentCheckoutRecordsOnce(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	f.svc.Retries = 50
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, sess.ID, "1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Checkout(ctx, sess.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, retail.ErrEmptyCart) || errors.Is(err, store.ErrConflict), err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	acct, err := f.svc.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, acct.History, 1)
}

func TestService_EmptyCheckoutLeavesStateUnchanged(t *testing.T) {
	st := store.NewMemory()
	f := newFixture(t, st)
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)

	beforeSess, err := st.Session(ctx, sess.ID)
	require.NoError(t, err)
	beforeAcct, err := st.Account(ctx, "cust-1")
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, sess.ID)
	require.ErrorIs(t, err, retail.ErrEmptyCart)

	afterSess, err := st.Session(ctx, sess.ID)
	require.NoError(t, err)
	afterAcct, err := st.Account(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, beforeSess, afterSess)
	assert.Equal(t, beforeAcct, afterAcct)
	assert.Empty(t, f.txns.all())
	assert.Empty(t, f.points.all())
}

func TestService_CartIntents(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, sess.ID, "404")
	assert.ErrorIs(t, err, retail.ErrProductNotFound)

	_, err = f.svc.SetQuantity(ctx, sess.ID, "404", 2)
	assert.ErrorIs(t, err, retail.ErrProductNotFound)

	cur, err := f.svc.SetQuantity(ctx, sess.ID, "2", 3)
	require.NoError(t, err)
	assert.True(t, cur.Cart.IsEmpty(), "setting a quantity never adds a line")

	_, err = f.svc.AddItem(ctx, sess.ID, "2")
	require.NoError(t, err)
	cur, err = f.svc.SetQuantity(ctx, sess.ID, "2", 3)
	require.NoError(t, err)
	assert.Equal(t, retail.Money(900), retail.Total(cur.Cart))

	_, err = f.svc.SetQuantity(ctx, sess.ID, "2", -1)
	assert.ErrorIs(t, err, retail.ErrInvalidQuantity)

	cur, err = f.svc.SetQuantity(ctx, sess.ID, "2", 0)
	require.NoError(t, err)
	assert.True(t, cur.Cart.IsEmpty())

	_, err = f.svc.AddItem(ctx, "missing-session", "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.OpenSession(ctx, "")
	assert.ErrorIs(t, err, ErrAccountRequired)
}

func TestService_RetriesOnConflict(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory()}
	f := newFixture(t, st)
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, "cust-1")
	require.NoError(t, err)

	st.conflicts = 3
	cur, err := f.svc.AddItem(ctx, sess.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Cart.Len())

	st.conflicts = 10
	_, err = f.svc.AddItem(ctx, sess.ID, "1")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestService_RedeemAndReferral(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()

	a, b, err := f.svc.Referral(ctx, "alice", "bob", 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), a.Points)
	assert.Equal(t, "silver", a.Tier)
	assert.Equal(t, "gold", a.NextTier)
	assert.Equal(t, int64(400), a.ToNext)
	assert.Equal(t, int64(600), b.Points)

	red, view, err := f.svc.Redeem(ctx, "alice", "seasonal-set")
	require.NoError(t, err)
	assert.Equal(t, int64(100), red.Balance)
	assert.Equal(t, "copper", view.Tier)

	_, _, err = f.svc.Redeem(ctx, "alice", "seasonal-set")
	assert.ErrorIs(t, err, retail.ErrInsufficientPoints)
	after, err := f.svc.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), after.Points)

	_, _, err = f.svc.Redeem(ctx, "alice", "unknown")
	assert.ErrorIs(t, err, retail.ErrRewardNotFound)

	_, _, err = f.svc.Referral(ctx, "alice", "alice", 10)
	assert.ErrorIs(t, err, retail.ErrSelfReferral)

	msgs := f.points.all()
	require.Len(t, msgs, 3)
	var last retail.PointsChangedPayload
	require.NoError(t, json.Unmarshal(msgs[2].env.Payload, &last))
	assert.Equal(t, int64(-500), last.Delta)
	assert.Equal(t, retail.ReasonRedemption, last.Reason)
	assert.Equal(t, "seasonal-set", last.Ref)
}

func TestService_ConcurrentRedeemNeverOverspends(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	f.svc.Retries = 100
	ctx := context.Background()
	_, _, err := f.svc.Referral(ctx, "alice", "bob", 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	redeemed := int64(0)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			red, _, err := f.svc.Redeem(ctx, "alice", "seasonal-set")
			if err != nil {
				return
			}
			mu.Lock()
			redeemed += red.Cost
			mu.Unlock()
		}()
	}
	wg.Wait()

	acct, err := f.svc.Account(ctx, "alice")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acct.Points, int64(0))
	assert.Equal(t, int64(1000)-redeemed, acct.Points)
	assert.LessOrEqual(t, redeemed, int64(1000))
}

func TestService_ProductsAndView(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	assert.Len(t, f.svc.Products("matcha", retail.CategoryAll), 1)
	assert.Equal(t, []string{"seasonal", "classic"}, f.svc.Categories())
	assert.Len(t, f.svc.RewardList(), 3)

	v := f.svc.View(retail.Account{ID: "x", Points: 1500})
	assert.Equal(t, "gold", v.Tier)
	assert.Empty(t, v.NextTier)
	assert.NotNil(t, v.History)
}

func TestService_OverflowRejectedWithoutCommit(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()

	_, _, err := f.svc.Referral(ctx, "alice", "bob", 10)
	require.NoError(t, err)
	_, _, err = f.svc.Referral(ctx, "alice", "bob", math.MaxInt64)
	assert.ErrorIs(t, err, retail.ErrInvalidPoints)

	alice, err := f.svc.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), alice.Points)
	assert.Equal(t, "copper", alice.Tier)

	sess, err := f.svc.OpenSession(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, sess.ID, "1")
	require.NoError(t, err)
	_, err = f.svc.SetQuantity(ctx, sess.ID, "1", math.MaxInt64/100)
	assert.ErrorIs(t, err, retail.ErrInvalidQuantity)

	cur, err := f.svc.SetQuantity(ctx, sess.ID, "1", math.MaxInt64/250)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, sess.ID, "1")
	assert.ErrorIs(t, err, retail.ErrInvalidQuantity)

	after, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, cur.Cart, after.Cart)
}
