package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/ariefcatur/go-retail-loyalty/internal/store"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service turns shopper intents into retail operations and commits their results
// atomically. Every mutation reads, applies a pure operation and commits with
// version checks, retrying when another request won the race.
type Service struct {
	Catalog   retail.Catalog
	Rewards   retail.Rewards
	Ledger    retail.Ledger
	Processor retail.Processor
	Store     store.Store

	Transactions Publisher // retail.transaction.completed
	Points       Publisher // loyalty.points.changed

	Log         *zap.Logger
	ServiceName string
	Retries     int
	Now         func() time.Time
}

type AccountView struct {
	ID       string   `json:"id"`
	Points   int64    `json:"points"`
	Tier     string   `json:"tier"`
	NextTier string   `json:"next_tier,omitempty"`
	ToNext   int64    `json:"points_to_next_tier,omitempty"`
	History  []string `json:"history"`
}

type CheckoutResult struct {
	Transaction retail.Transaction `json:"transaction"`
	Session     store.Session      `json:"session"`
	Account     AccountView        `json:"account"`
}

func (s *Service) Products(term, category string) []retail.Product {
	return retail.Filter(s.Catalog, term, category)
}

func (s *Service) Categories() []string { return s.Catalog.Categories() }

func (s *Service) RewardList() []retail.Reward { return s.Rewards.List() }

func (s *Service) View(a retail.Account) AccountView {
	v := AccountView{
		ID:      a.ID,
		Points:  a.Points,
		Tier:    s.Ledger.Tier(a).Name,
		History: a.History,
	}
	if v.History == nil {
		v.History = []string{}
	}
	if next, remaining, ok := s.Ledger.Tiers.Progress(a.Points); ok {
		v.NextTier = next.Name
		v.ToNext = remaining
	}
	return v
}

func (s *Service) OpenSession(ctx context.Context, accountID string) (store.Session, error) {
	if accountID == "" {
		return store.Session{}, fmt.Errorf("open session: %w", ErrAccountRequired)
	}
	sess := store.Session{ID: uuid.NewString(), AccountID: accountID}
	if err := s.Store.Commit(ctx, store.Change{Session: &sess}); err != nil {
		return store.Session{}, err
	}
	sess.Version++
	s.log().Info("session opened", zap.String("session_id", sess.ID), zap.String("account_id", accountID))
	return sess, nil
}

func (s *Service) Session(ctx context.Context, sessionID string) (store.Session, error) {
	return s.Store.Session(ctx, sessionID)
}

// updateCart runs op against the latest cart until the commit goes through.
func (s *Service) updateCart(ctx context.Context, sessionID string, op func(retail.Cart) (retail.Cart, error)) (store.Session, error) {
	var out store.Session
	err := s.retry(ctx, func() error {
		sess, err := s.Store.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		cart, err := op(sess.Cart)
		if err != nil {
			return err
		}
		sess.Cart = cart
		if err := s.Store.Commit(ctx, store.Change{Session: &sess}); err != nil {
			return err
		}
		sess.Version++
		out = sess
		return nil
	})
	return out, err
}

func (s *Service) AddItem(ctx context.Context, sessionID, productID string) (store.Session, error) {
	p, ok := s.Catalog.Lookup(productID)
	if !ok {
		return store.Session{}, fmt.Errorf("add %s: %w", productID, retail.ErrProductNotFound)
	}
	return s.updateCart(ctx, sessionID, func(c retail.Cart) (retail.Cart, error) {
		next := retail.AddItem(c, p)
		if _, err := retail.TotalChecked(next); err != nil {
			return c, fmt.Errorf("add %s: %w", productID, err)
		}
		return next, nil
	})
}

func (s *Service) SetQuantity(ctx context.Context, sessionID, productID string, n int) (store.Session, error) {
	return s.updateCart(ctx, sessionID, func(c retail.Cart) (retail.Cart, error) {
		if _, inCart := c.Line(productID); !inCart {
			if _, known := s.Catalog.Lookup(productID); !known {
				return c, fmt.Errorf("set quantity %s: %w", productID, retail.ErrProductNotFound)
			}
		}
		return retail.SetQuantity(c, productID, n)
	})
}

func (s *Service) RemoveItem(ctx context.Context, sessionID, productID string) (store.Session, error) {
	return s.updateCart(ctx, sessionID, func(c retail.Cart) (retail.Cart, error) {
		return retail.RemoveItem(c, productID), nil
	})
}

// Checkout finalises the session's cart. The emptied cart, the accrued account and
// the transaction are written in one commit; a repeated checkout sees the empty cart
// and fails with retail.ErrEmptyCart.
func (s *Service) Checkout(ctx context.Context, sessionID string) (CheckoutResult, error) {
	var res CheckoutResult
	err := s.retry(ctx, func() error {
		sess, err := s.Store.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		acct, err := s.Store.Account(ctx, sess.AccountID)
		if err != nil {
			return err
		}
		rec, err := s.Processor.Checkout(sess.Cart, acct.Account)
		if err != nil {
			return err
		}

		sess.Cart = rec.Cart
		acct.Account = rec.Account
		txn := rec.Transaction
		if err := s.Store.Commit(ctx, store.Change{
			Session:     &sess,
			Accounts:    []store.AccountRecord{acct},
			Transaction: &txn,
		}); err != nil {
			return err
		}
		sess.Version++
		res = CheckoutResult{Transaction: txn, Session: sess, Account: s.View(rec.Account)}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	txn := res.Transaction
	s.log().Info("checkout completed",
		zap.String("session_id", sessionID),
		zap.String("transaction_id", txn.ID),
		zap.String("account_id", txn.AccountID),
		zap.Int64("total", int64(txn.Total)),
		zap.Int64("points_earned", txn.PointsEarned),
	)
	s.publish(ctx, s.Transactions, txn.AccountID, retail.EventTransactionCompleted, retail.TransactionCompletedPayload{
		Transaction: txn,
		Balance:     res.Account.Points,
		Tier:        res.Account.Tier,
	})
	if txn.PointsEarned > 0 {
		s.publishPoints(ctx, res.Account, txn.PointsEarned, retail.ReasonPurchase, txn.ID)
	}
	return res, nil
}

func (s *Service) Account(ctx context.Context, accountID string) (AccountView, error) {
	rec, err := s.Store.Account(ctx, accountID)
	if err != nil {
		return AccountView{}, err
	}
	return s.View(rec.Account), nil
}

func (s *Service) Transaction(ctx context.Context, id string) (retail.Transaction, error) {
	return s.Store.Transaction(ctx, id)
}

func (s *Service) Redeem(ctx context.Context, accountID, rewardID string) (retail.Redemption, AccountView, error) {
	reward, err := s.Rewards.Lookup(rewardID)
	if err != nil {
		return retail.Redemption{}, AccountView{}, err
	}

	var red retail.Redemption
	var view AccountView
	err = s.retry(ctx, func() error {
		rec, err := s.Store.Account(ctx, accountID)
		if err != nil {
			return err
		}
		next, r, err := s.Ledger.RedeemReward(rec.Account, reward)
		if err != nil {
			return err
		}
		rec.Account = next
		if err := s.Store.Commit(ctx, store.Change{Accounts: []store.AccountRecord{rec}}); err != nil {
			return err
		}
		red, view = r, s.View(next)
		return nil
	})
	if err != nil {
		return retail.Redemption{}, AccountView{}, err
	}

	s.log().Info("reward redeemed",
		zap.String("account_id", accountID),
		zap.String("reward_id", reward.ID),
		zap.Int64("cost", reward.Cost),
		zap.Int64("balance", red.Balance),
	)
	if reward.Cost > 0 {
		s.publishPoints(ctx, view, -reward.Cost, retail.ReasonRedemption, reward.ID)
	}
	return red, view, nil
}

func (s *Service) Referral(ctx context.Context, referrerID, refereeID string, amount int64) (AccountView, AccountView, error) {
	if referrerID == "" || refereeID == "" {
		return AccountView{}, AccountView{}, fmt.Errorf("referral: %w", ErrAccountRequired)
	}

	var v1, v2 AccountView
	err := s.retry(ctx, func() error {
		r1, err := s.Store.Account(ctx, referrerID)
		if err != nil {
			return err
		}
		r2, err := s.Store.Account(ctx, refereeID)
		if err != nil {
			return err
		}
		a1, a2, err := s.Ledger.ReferralBonus(r1.Account, r2.Account, amount)
		if err != nil {
			return err
		}
		r1.Account, r2.Account = a1, a2
		if err := s.Store.Commit(ctx, store.Change{Accounts: []store.AccountRecord{r1, r2}}); err != nil {
			return err
		}
		v1, v2 = s.View(a1), s.View(a2)
		return nil
	})
	if err != nil {
		return AccountView{}, AccountView{}, err
	}

	s.log().Info("referral credited",
		zap.String("referrer_id", referrerID),
		zap.String("referee_id", refereeID),
		zap.Int64("amount", amount),
	)
	if amount > 0 {
		s.publishPoints(ctx, v1, amount, retail.ReasonReferral, refereeID)
		s.publishPoints(ctx, v2, amount, retail.ReasonReferral, referrerID)
	}
	return v1, v2, nil
}

func (s *Service) retry(ctx context.Context, fn func() error) error {
	attempts := s.Retries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		s.log().Debug("commit conflict, retrying", zap.Int("attempt", i+1), zap.Error(err))
	}
	return err
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
