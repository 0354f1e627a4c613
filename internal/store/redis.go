package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-retail-loyalty/internal/redisx"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/redis/go-redis/v9"
)

// Redis keeps sessions, accounts and transactions as JSON documents. Commit uses
// WATCH/MULTI so concurrent replicas cannot lose each other's updates.
type Redis struct {
	rdb        *redis.Client
	sessionTTL time.Duration
}

func NewRedis(rdb *redis.Client, sessionTTL time.Duration) *Redis {
	if sessionTTL <= 0 {
		sessionTTL = redisx.TTLSession
	}
	return &Redis{rdb: rdb, sessionTTL: sessionTTL}
}

func sessionKey(id string) string { return fmt.Sprintf(redisx.KeySession, id) }
func accountKey(id string) string { return fmt.Sprintf(redisx.KeyAccount, id) }
func txnKey(id string) string     { return fmt.Sprintf(redisx.KeyTransaction, id) }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, g getter, key string, out any) (bool, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Session(ctx context.Context, id string) (Session, error) {
	var s Session
	ok, err := getJSON(ctx, r.rdb, sessionKey(id), &s)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (r *Redis) Account(ctx context.Context, id string) (AccountRecord, error) {
	var a AccountRecord
	ok, err := getJSON(ctx, r.rdb, accountKey(id), &a)
	if err != nil {
		return AccountRecord{}, err
	}
	if !ok {
		return AccountRecord{Account: retail.Account{ID: id}}, nil
	}
	return a, nil
}

func (r *Redis) Transaction(ctx context.Context, id string) (retail.Transaction, error) {
	var t retail.Transaction
	ok, err := getJSON(ctx, r.rdb, txnKey(id), &t)
	if err != nil {
		return retail.Transaction{}, err
	}
	if !ok {
		return retail.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (r *Redis) Commit(ctx context.Context, ch Change) error {
	if err := ch.validate(); err != nil {
		return err
	}

	var keys []string
	if ch.Session != nil {
		keys = append(keys, sessionKey(ch.Session.ID))
	}
	for _, a := range ch.Accounts {
		keys = append(keys, accountKey(a.Account.ID))
	}
	if ch.Transaction != nil {
		keys = append(keys, txnKey(ch.Transaction.ID))
	}
	if len(keys) == 0 {
		return nil
	}

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		if err := r.checkVersions(ctx, tx, ch); err != nil {
			return err
		}

		writes := make(map[string][]byte, len(keys))
		var sessionPayload []byte
		if s := ch.Session; s != nil {
			next := *s
			next.Version++
			b, err := json.Marshal(next)
			if err != nil {
				return err
			}
			sessionPayload = b
		}
		for _, a := range ch.Accounts {
			a.Version++
			b, err := json.Marshal(a)
			if err != nil {
				return err
			}
			writes[accountKey(a.Account.ID)] = b
		}
		if t := ch.Transaction; t != nil {
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			writes[txnKey(t.ID)] = b
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if sessionPayload != nil {
				pipe.Set(ctx, sessionKey(ch.Session.ID), sessionPayload, r.sessionTTL)
			}
			for k, v := range writes {
				pipe.Set(ctx, k, v, 0)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("commit: %w", ErrConflict)
	}
	return err
}

func (r *Redis) checkVersions(ctx context.Context, tx *redis.Tx, ch Change) error {
	if s := ch.Session; s != nil {
		var cur Session
		if _, err := getJSON(ctx, tx, sessionKey(s.ID), &cur); err != nil {
			return err
		}
		if cur.Version != s.Version {
			return fmt.Errorf("session %s: %w", s.ID, ErrConflict)
		}
	}
	for _, a := range ch.Accounts {
		var cur AccountRecord
		if _, err := getJSON(ctx, tx, accountKey(a.Account.ID), &cur); err != nil {
			return err
		}
		if cur.Version != a.Version {
			return fmt.Errorf("account %s: %w", a.Account.ID, ErrConflict)
		}
	}
	if t := ch.Transaction; t != nil {
		n, err := tx.Exists(ctx, txnKey(t.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("transaction %s: %w", t.ID, ErrConflict)
		}
	}
	return nil
}
