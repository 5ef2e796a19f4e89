package redisx

import "time"

const (
	// Idempotent create order: idem:order:create:{user_id}:{key} -> order_id ("pending" while creating)
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache status order: order_status:{order_id} -> hash {entry: {"status", "updated_at"}, ts: unix micros}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour

	// claim held while the order is created; expires if the process dies
	TTLIdempotencyPending = 30 * time.Second
)
