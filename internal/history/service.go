package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-retail-loyalty/internal/kafka"
	"github.com/ariefcatur/go-retail-loyalty/internal/redisx"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const dedupScope = "history"

// DefaultMaxEntries caps each account's feed when MaxEntries is unset.
const DefaultMaxEntries = 200

// Entry is one line of an account's points history.
type Entry struct {
	EventID string    `json:"event_id"`
	Delta   int64     `json:"delta"`
	Balance int64     `json:"balance"`
	Tier    string    `json:"tier"`
	Reason  string    `json:"reason"`
	Ref     string    `json:"ref,omitempty"`
	At      time.Time `json:"at"`
}

// Service projects loyalty.points.changed events into a capped per-account list.
type Service struct {
	Redis      *redis.Client
	MaxEntries int
	Log        *zap.Logger
}

// HandlePointsChanged is installed as the consumer handler.
func (s *Service) HandlePointsChanged(ctx context.Context, m kafkago.Message) error {
	var env retail.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message: log and let the offset move on
		s.log().Warn("undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != retail.EventPointsChanged {
		return nil
	}
	p, err := kafkax.UnwrapPayload[retail.PointsChangedPayload](env.Payload)
	if err != nil {
		s.log().Warn("undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, dedupScope, env.EventID)
	first, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim %s: %w", env.EventID, err)
	}
	if !first {
		s.log().Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	if err := s.Append(ctx, p.AccountID, Entry{
		EventID: env.EventID,
		Delta:   p.Delta,
		Balance: p.Balance,
		Tier:    p.Tier,
		Reason:  p.Reason,
		Ref:     p.Ref,
		At:      p.At,
	}); err != nil {
		// release the claim so the redelivered message is applied
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	s.log().Info("points history appended",
		zap.String("event_id", env.EventID),
		zap.String("account_id", p.AccountID),
		zap.Int64("delta", p.Delta),
		zap.String("reason", p.Reason),
	)
	return nil
}

// Append pushes e to the head of the account's feed and trims it.
func (s *Service) Append(ctx context.Context, accountID string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyPointsHistory, accountID)
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, int64(s.max()-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history %s: %w", accountID, err)
	}
	return nil
}

// Feed returns up to limit entries, newest first. limit <= 0 means the whole feed.
func (s *Service) Feed(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.Redis.LRange(ctx, fmt.Sprintf(redisx.KeyPointsHistory, accountID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", accountID, err)
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", accountID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) max() int {
	if s.MaxEntries > 0 {
		return s.MaxEntries
	}
	return DefaultMaxEntries
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
