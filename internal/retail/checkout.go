package retail

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultAccrualBPS earns 1 point per 100 units spent.
const DefaultAccrualBPS = 100

// Processor turns a cart into a Transaction and accrues the earned points.
type Processor struct {
	AccrualBPS int64 // basis points of the total credited as points
	Ledger     Ledger
	Now        func() time.Time
	NewID      func() string
}

// Receipt is everything a successful checkout produces: the caller swaps in Cart
// and Account together with storing Transaction.
type Receipt struct {
	Transaction Transaction
	Cart        Cart
	Account     Account
}

// PointsFor floors total * bps / 10000 without forming the full product, saturating at
// math.MaxInt64 for rates above 100%.
func PointsFor(total Money, bps int64) int64 {
	if total <= 0 || bps <= 0 {
		return 0
	}
	whole, rest := int64(total)/10000, int64(total)%10000
	if whole > math.MaxInt64/bps {
		return math.MaxInt64
	}
	points := whole * bps
	// floor(rest*bps/10000) split so neither product can overflow
	frac := rest*(bps/10000) + rest*(bps%10000)/10000
	if frac > math.MaxInt64-points {
		return math.MaxInt64
	}
	return points + frac
}

func (p Processor) Checkout(cart Cart, account Account) (Receipt, error) {
	if cart.IsEmpty() {
		return Receipt{}, ErrEmptyCart
	}

	total, err := TotalChecked(cart)
	if err != nil {
		return Receipt{}, err
	}
	earned := PointsFor(total, p.AccrualBPS)
	txn := Transaction{
		ID:           p.newID(),
		AccountID:    account.ID,
		Timestamp:    p.now(),
		Lines:        cart.Lines(),
		Total:        total,
		PointsEarned: earned,
	}

	accrued, err := p.Ledger.Accrue(account, earned)
	if err != nil {
		return Receipt{}, fmt.Errorf("checkout %s: %w", txn.ID, err)
	}

	return Receipt{
		Transaction: txn,
		Cart:        Cart{},
		Account:     recordTransaction(accrued, txn.ID),
	}, nil
}

func (p Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p Processor) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}
