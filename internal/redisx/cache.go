package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// StatusEntry is the cached view of an order's status.
type StatusEntry struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache keeps one hash per order: the encoded entry and its UpdatedAt
// in unix microseconds, which setStatusScript compares atomically.
type StatusCache struct {
	RDB redis.Cmdable
}

// KEYS[1] status key; ARGV ts, entry, ttl in ms
const setStatusScript = `
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'entry', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// Get reports false when nothing is cached for the order.
func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	raw, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "entry").Result()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return StatusEntry{}, false, fmt.Errorf("decode status entry: %w", err)
	}
	return e, true, nil
}

// Set stores e unless a newer entry is already cached. Events for one order
// can reach different workers, so the compare and the write happen in one
// script.
func (c *StatusCache) Set(ctx context.Context, orderID string, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.RDB.Eval(ctx, setStatusScript, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		e.UpdatedAt.UnixMicro(), string(b), TTLStatusCache.Milliseconds()).Err()
}

// Idempotency maps a client-supplied key to the order it created. A key is
// claimed before the order is created, so concurrent retries cannot create
// two orders.
type Idempotency struct {
	RDB redis.Cmdable
}

// idemPending marks a claimed key whose order is still being created.
const idemPending = "pending"

// ErrIdempotencyPending is returned by Claim while another request holds the
// key and has not finished creating its order.
var ErrIdempotencyPending = errors.New("idempotency key in use")

// Claim reserves key for the caller. When the key is already on record it
// returns the order id stored for it and claimed=false.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)
	ok, err := i.RDB.SetNX(ctx, k, idemPending, TTLIdempotencyPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	id, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) || id == idemPending {
		// still pending, or released by a failed attempt just now
		return "", false, ErrIdempotencyPending
	}
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

// Complete records orderID under a key the caller claimed.
func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key), orderID, TTLIdempotency).Err()
}

// Abandon releases a claimed key after the create failed so the client can
// retry.
func (i *Idempotency) Abandon(ctx context.Context, userID, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key)).Err()
}

// Dedup marks event ids as processed for one consumer.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

// Claim reports true the first time an event id is seen.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Result()
}

// Release forgets an event id so a failed event can be retried.
func (d *Dedup) Release(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Err()
}
