package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
)

type Memory struct {
	mu       sync.Mutex
	sessions map[string]Session
	accounts map[string]AccountRecord
	txns     map[string]retail.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		accounts: make(map[string]AccountRecord),
		txns:     make(map[string]retail.Transaction),
	}
}

func (m *Memory) Session(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *Memory) Account(_ context.Context, id string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return AccountRecord{Account: retail.Account{ID: id}}, nil
}

func (m *Memory) Transaction(_ context.Context, id string) (retail.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return retail.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// Cart and Account values are never mutated in place by the retail package,
// so records are shared with callers without copying.
func (m *Memory) Commit(_ context.Context, ch Change) error {
	if err := ch.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := ch.Session; s != nil {
		if m.sessions[s.ID].Version != s.Version {
			return fmt.Errorf("session %s: %w", s.ID, ErrConflict)
		}
	}
	for _, a := range ch.Accounts {
		if m.accounts[a.Account.ID].Version != a.Version {
			return fmt.Errorf("account %s: %w", a.Account.ID, ErrConflict)
		}
	}
	if t := ch.Transaction; t != nil {
		if _, dup := m.txns[t.ID]; dup {
			return fmt.Errorf("transaction %s: %w", t.ID, ErrConflict)
		}
	}

	if s := ch.Session; s != nil {
		next := *s
		next.Version++
		m.sessions[s.ID] = next
	}
	for _, a := range ch.Accounts {
		a.Version++
		m.accounts[a.Account.ID] = a
	}
	if t := ch.Transaction; t != nil {
		m.txns[t.ID] = *t
	}
	return nil
}
