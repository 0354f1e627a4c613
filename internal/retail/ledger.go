package retail

import (
	"fmt"
	"math"
)

// Ledger applies point movements to accounts. All methods are pure: the input
// accounts are returned untouched on failure and never modified on success.
type Ledger struct {
	Tiers TierSchedule
}

func (l Ledger) Tier(a Account) Tier { return l.Tiers.TierFor(a.Points) }

func (l Ledger) Accrue(a Account, points int64) (Account, error) {
	if points < 0 {
		return a, fmt.Errorf("accrue %d: %w", points, ErrInvalidPoints)
	}
	if points > math.MaxInt64-a.Points {
		return a, fmt.Errorf("accrue %d onto %d overflows: %w", points, a.Points, ErrInvalidPoints)
	}
	out := a
	out.Points += points
	return out, nil
}

func (l Ledger) Redeem(a Account, cost int64) (Account, error) {
	if cost < 0 {
		return a, fmt.Errorf("redeem %d: %w", cost, ErrInvalidPoints)
	}
	if a.Points < cost {
		return a, fmt.Errorf("have %d, need %d: %w", a.Points, cost, ErrInsufficientPoints)
	}
	out := a
	out.Points -= cost
	return out, nil
}

func (l Ledger) RedeemReward(a Account, r Reward) (Account, Redemption, error) {
	out, err := l.Redeem(a, r.Cost)
	if err != nil {
		return a, Redemption{}, fmt.Errorf("reward %s: %w", r.ID, err)
	}
	return out, Redemption{RewardID: r.ID, RewardName: r.Name, Cost: r.Cost, Balance: out.Points}, nil
}

// ReferralBonus credits amount to both the referrer and the referee.
func (l Ledger) ReferralBonus(referrer, referee Account, amount int64) (Account, Account, error) {
	if referrer.ID == referee.ID {
		return referrer, referee, ErrSelfReferral
	}
	r1, err := l.Accrue(referrer, amount)
	if err != nil {
		return referrer, referee, err
	}
	r2, err := l.Accrue(referee, amount)
	if err != nil {
		return referrer, referee, err
	}
	return r1, r2, nil
}

// recordTransaction appends a transaction id without sharing the caller's backing array.
func recordTransaction(a Account, txnID string) Account {
	out := a
	out.History = make([]string, len(a.History), len(a.History)+1)
	copy(out.History, a.History)
	out.History = append(out.History, txnID)
	return out
}

// Rewards is the catalog of things points can be exchanged for.
type Rewards struct {
	list []Reward
}

// DefaultRewards mirrors the reward shelf of the shop demos.
var DefaultRewards = []Reward{
	{ID: "seasonal-set", Name: "Seasonal sweets set", Cost: 500},
	{ID: "matcha-ticket", Name: "Matcha experience ticket", Cost: 1000},
	{ID: "artisan-class", Name: "Artisan sweets workshop", Cost: 2000},
}

func NewRewards(list []Reward) (Rewards, error) {
	seen := make(map[string]bool, len(list))
	for _, r := range list {
		if r.ID == "" {
			return Rewards{}, fmt.Errorf("reward %q has empty id", r.Name)
		}
		if r.Cost < 0 {
			return Rewards{}, fmt.Errorf("reward %s: %w", r.ID, ErrInvalidPoints)
		}
		if seen[r.ID] {
			return Rewards{}, fmt.Errorf("duplicate reward id %s", r.ID)
		}
		seen[r.ID] = true
	}
	out := make([]Reward, len(list))
	copy(out, list)
	return Rewards{list: out}, nil
}

func (r Rewards) Lookup(id string) (Reward, error) {
	for _, rw := range r.list {
		if rw.ID == id {
			return rw, nil
		}
	}
	return Reward{}, fmt.Errorf("reward %s: %w", id, ErrRewardNotFound)
}

func (r Rewards) List() []Reward {
	out := make([]Reward, len(r.list))
	copy(out, r.list)
	return out
}
