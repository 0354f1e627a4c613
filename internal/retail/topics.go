package retail

const (
	TopicTransactionCompleted = "retail.transaction.completed"
	TopicPointsChanged        = "loyalty.points.changed"
)

// Partition key = account id so every event of one account stays ordered.
func PartitionKey(accountID string) []byte { return []byte(accountID) }
