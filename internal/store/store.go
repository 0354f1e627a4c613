package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("record changed concurrently")
)

// Session is one shopper's open cart, bound to the loyalty account it checks out into.
type Session struct {
	ID        string      `json:"id"`
	AccountID string      `json:"account_id"`
	Cart      retail.Cart `json:"cart"`
	Version   int64       `json:"version"`
}

type AccountRecord struct {
	Account retail.Account `json:"account"`
	Version int64          `json:"version"`
}

// Change is committed all-or-nothing. Version on each record is the version it was
// read at (0 = not stored yet); a stored record with another version fails the whole
// commit with ErrConflict. Committed records get Version+1.
type Change struct {
	Session     *Session
	Accounts    []AccountRecord
	Transaction *retail.Transaction
}

type Store interface {
	Session(ctx context.Context, id string) (Session, error)
	// Account returns a zero-balance record at version 0 for unknown ids.
	Account(ctx context.Context, id string) (AccountRecord, error)
	Transaction(ctx context.Context, id string) (retail.Transaction, error)
	Commit(ctx context.Context, ch Change) error
}

func (ch Change) validate() error {
	if ch.Session != nil && ch.Session.ID == "" {
		return fmt.Errorf("commit: session without id")
	}
	seen := make(map[string]bool, len(ch.Accounts))
	for _, a := range ch.Accounts {
		if a.Account.ID == "" {
			return fmt.Errorf("commit: account without id")
		}
		if seen[a.Account.ID] {
			return fmt.Errorf("commit: account %s listed twice", a.Account.ID)
		}
		seen[a.Account.ID] = true
	}
	if ch.Transaction != nil && ch.Transaction.ID == "" {
		return fmt.Errorf("commit: transaction without id")
	}
	return nil
}
