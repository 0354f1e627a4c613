package shop

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-retail-loyalty/internal/kafka"
	"github.com/ariefcatur/go-retail-loyalty/internal/retail"
	"github.com/google/uuid"
)

type traceKey struct{}

// WithTraceID tags events published while handling ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) publish(ctx context.Context, p Publisher, accountID, eventType string, payload any) {
	if p == nil {
		return
	}
	ev := retail.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		TraceID:       traceID(ctx),
		CorrelationID: accountID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(retail.PartitionKey(accountID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, ev.EventVersion)...)
}

func (s *Service) publishPoints(ctx context.Context, v AccountView, delta int64, reason, ref string) {
	s.publish(ctx, s.Points, v.ID, retail.EventPointsChanged, retail.PointsChangedPayload{
		AccountID: v.ID,
		Delta:     delta,
		Balance:   v.Points,
		Tier:      v.Tier,
		Reason:    reason,
		Ref:       ref,
		At:        s.now(),
	})
}
