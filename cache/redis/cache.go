// Package rediscache provides an entitlement cache shared by every process that
// talks to the same Redis server.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
)

// DefaultNamespace prefixes every key.
const DefaultNamespace = "entitlement"

const (
	fieldTier     = "tier"
	fieldCredits  = "credits_remaining"
	fieldRenewal  = "last_renewal_date"
	fieldIsYearly = "is_yearly"
	fieldRegion   = "region"

	// fieldProvisional is only present on outage defaults.
	fieldProvisional = "provisional"
)

// maxUpdateAttempts bounds optimistic retries of Update under contention.
const maxUpdateAttempts = 16

// Debit status codes returned by debitScript.
const (
	statusDebited   = 0
	statusExhausted = -1
	statusMiss      = -2
	statusPremium   = -3
)

// debitScript takes one credit from a free record in a single server-side
// step and returns the status followed by the record fields.
var debitScript = redis.NewScript(`
local tier = redis.call('HGET', KEYS[1], 'tier')
if not tier then return {-2} end
local status = 0
if tier == 'premium' then
  status = -3
else
  local credits = tonumber(redis.call('HGET', KEYS[1], 'credits_remaining'))
  if credits == nil or credits <= 0 then
    status = -1
  else
    redis.call('HINCRBY', KEYS[1], 'credits_remaining', -1)
  end
end
local vals = redis.call('HMGET', KEYS[1], 'tier', 'credits_remaining', 'last_renewal_date', 'is_yearly', 'region', 'provisional')
table.insert(vals, 1, status)
return vals
`)

// Cache stores each entitlement as a Redis hash.
type Cache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

var _ entitlement.Cache = (*Cache)(nil)

// New creates a cache. A zero ttl keeps entries until they are overwritten.
func New(rdb *redis.Client, namespace string, ttl time.Duration) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Cache{rdb: rdb, keyNS: namespace, ttl: ttl}
}

func (c *Cache) key(userID string) string { return c.keyNS + "_" + userID }

func (c *Cache) Get(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	vals, err := c.rdb.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("credits/redis: get %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
	}

	e, err := fromHash(userID, vals)
	if err != nil {
		// An entry this process cannot read is reloaded like a missing one.
		return nil, fmt.Errorf("%w: %s: %w", credits.ErrCacheMiss, userID, err)
	}
	return e, nil
}

func (c *Cache) Set(ctx context.Context, e *entitlement.Entitlement) error {
	if e == nil || e.UserID == "" {
		return credits.ValidationError{Field: "user_id", Message: "must not be empty"}
	}

	key := c.key(e.UserID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, toHash(e))
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credits/redis: set %s: %w", e.UserID, err)
	}
	return nil
}

func (c *Cache) Debit(ctx context.Context, userID string) (*entitlement.Entitlement, entitlement.DebitResult, error) {
	reply, err := debitScript.Run(ctx, c.rdb, []string{c.key(userID)}).Slice()
	if err != nil {
		return nil, entitlement.Exhausted, fmt.Errorf("credits/redis: debit %s: %w", userID, err)
	}
	if len(reply) == 0 {
		return nil, entitlement.Exhausted, fmt.Errorf("credits/redis: debit %s: empty reply", userID)
	}

	status, _ := reply[0].(int64)
	var res entitlement.DebitResult
	switch status {
	case statusMiss:
		return nil, entitlement.Exhausted, fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
	case statusPremium:
		res = entitlement.Unmetered
	case statusExhausted:
		res = entitlement.Exhausted
	case statusDebited:
		res = entitlement.Debited
	default:
		return nil, entitlement.Exhausted, fmt.Errorf("credits/redis: debit %s: unexpected status %d", userID, status)
	}

	fields := []string{fieldTier, fieldCredits, fieldRenewal, fieldIsYearly, fieldRegion, fieldProvisional}
	vals := make(map[string]string, len(fields))
	for i, f := range fields {
		if i+1 >= len(reply) {
			break
		}
		if s, ok := reply[i+1].(string); ok {
			vals[f] = s
		}
	}

	e, err := fromHash(userID, vals)
	if err != nil {
		return nil, entitlement.Exhausted, fmt.Errorf("%w: %s: %w", credits.ErrMalformedRecord, userID, err)
	}
	return e, res, nil
}

// Update reads, modifies and rewrites the entry inside a WATCH transaction,
// retrying when a concurrent Debit or Set touches the key first.
func (c *Cache) Update(ctx context.Context, userID string, fn func(*entitlement.Entitlement) error) (*entitlement.Entitlement, error) {
	key := c.key(userID)

	var out *entitlement.Entitlement
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
		}
		e, err := fromHash(userID, vals)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", credits.ErrCacheMiss, userID, err)
		}
		if err := fn(e); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, toHash(e))
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = e
		return nil
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, credits.ErrCacheMiss) {
				return nil, err
			}
			return nil, fmt.Errorf("credits/redis: update %s: %w", userID, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("credits/redis: update %s: gave up after %d conflicting writes", userID, maxUpdateAttempts)
}

func (c *Cache) Delete(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.key(userID)).Err()
}

func toHash(e *entitlement.Entitlement) map[string]any {
	r := entitlement.ToRecord(e)
	yearly := "0"
	if r.IsYearly {
		yearly = "1"
	}
	h := map[string]any{
		fieldTier:     r.Tier,
		fieldCredits:  r.CreditsRemaining,
		fieldRenewal:  r.LastRenewalDate,
		fieldIsYearly: yearly,
		fieldRegion:   r.Region,
	}
	if e.Provisional {
		h[fieldProvisional] = "1"
	}
	return h
}

func fromHash(userID string, vals map[string]string) (*entitlement.Entitlement, error) {
	n, err := strconv.ParseInt(vals[fieldCredits], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("credits_remaining: %w", err)
	}
	e, err := entitlement.FromRecord(userID, entitlement.Record{
		Tier:             vals[fieldTier],
		CreditsRemaining: n,
		LastRenewalDate:  vals[fieldRenewal],
		IsYearly:         vals[fieldIsYearly] == "1",
		Region:           vals[fieldRegion],
	})
	if err != nil {
		return nil, err
	}
	e.Provisional = vals[fieldProvisional] == "1"
	return e, nil
}
