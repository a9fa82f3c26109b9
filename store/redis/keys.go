package redis

// Key prefixes for primary entity storage.
const (
	prefixWebhook  = "courier:wh:"
	prefixDelivery = "courier:del:"
)

// Sorted set indexes.
const (
	zWebhookAll     = "courier:z:wh:all"
	zDeliveryWH     = "courier:z:del:wh:" // + webhook ID, scored by created_at
	zDeliveryRetry  = "courier:z:del:retrying"
	zDeliveryPend   = "courier:z:del:pending"
	sEventWebhooks  = "courier:s:event:" // + event type, active webhook IDs
	hClaimToken     = "courier:h:claim:token"
	hClaimUntil     = "courier:h:claim:until"
	hDeliveryStatus = "courier:h:del:status"
	hStatusCounts   = "courier:h:del:counts"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// eventSetKey returns the set holding active subscribers of eventType.
func eventSetKey(eventType string) string {
	return sEventWebhooks + eventType
}
