package retail

import (
	"math"
	"time"
)

// Money is an amount in minor currency units (yen in the shop demos, cents elsewhere).
type Money int64

type Product struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	UnitPrice Money  `json:"unit_price" yaml:"unit_price"`
	Category  string `json:"category" yaml:"category"`
}

// CartLine keeps the price seen when the line was created.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

func (l CartLine) Subtotal() Money { return Money(l.Quantity) * l.UnitPrice }

func (l CartLine) checkedSubtotal() (Money, bool) {
	if l.UnitPrice > 0 && Money(l.Quantity) > math.MaxInt64/l.UnitPrice {
		return 0, false
	}
	return l.Subtotal(), true
}

type Transaction struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Timestamp    time.Time  `json:"timestamp"`
	Lines        []CartLine `json:"lines"`
	Total        Money      `json:"total"`
	PointsEarned int64      `json:"points_earned"`
}

// Account is a customer's loyalty balance. The tier is derived from Points through a
// TierSchedule and is never stored.
type Account struct {
	ID      string   `json:"id"`
	Points  int64    `json:"points"`
	History []string `json:"history,omitempty"` // transaction ids, oldest first
}

type Reward struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Cost int64  `json:"cost" yaml:"cost"`
}

type Redemption struct {
	RewardID   string `json:"reward_id"`
	RewardName string `json:"reward_name"`
	Cost       int64  `json:"cost"`
	Balance    int64  `json:"balance"`
}
