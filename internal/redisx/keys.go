package redisx

import "time"

const (
	// Session: session:{session_id} -> {"version":n,"account_id":"...","cart":{...}}
	KeySession = "session:%s"

	// Loyalty account: account:{account_id} -> {"version":n,"account":{...}}
	KeyAccount = "account:%s"

	// Finalised transaction: txn:{transaction_id} -> transaction JSON
	KeyTransaction = "txn:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Points history feed, newest first: points_history:{account_id}
	KeyPointsHistory = "points_history:%s"
)

var (
	TTLSession = 24 * time.Hour
	TTLDedup   = 48 * time.Hour
)
