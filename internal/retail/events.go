package retail

import (
	"encoding/json"
	"time"
)

const (
	EventTransactionCompleted = "TransactionCompleted"
	EventPointsChanged        = "PointsChanged"
)

// Reasons carried by PointsChangedPayload.
const (
	ReasonPurchase   = "purchase"
	ReasonRedemption = "redemption"
	ReasonReferral   = "referral"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // account id
	Payload       json.RawMessage `json:"payload"`
}

type TransactionCompletedPayload struct {
	Transaction Transaction `json:"transaction"`
	Balance     int64       `json:"balance"`
	Tier        string      `json:"tier"`
}

type PointsChangedPayload struct {
	AccountID string    `json:"account_id"`
	Delta     int64     `json:"delta"` // negative for redemptions
	Balance   int64     `json:"balance"`
	Tier      string    `json:"tier"`
	Reason    string    `json:"reason"`
	Ref       string    `json:"ref,omitempty"` // transaction id, reward id or counterpart account
	At        time.Time `json:"at"`
}
