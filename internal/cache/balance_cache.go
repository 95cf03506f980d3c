package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// BalanceCache is a short-TTL read-through cache over the ledger, keyed
// per user. It is advisory only: mutating flows never consult it, and the
// coordinator invalidates every user-scoped key after each commit, so
// staleness is bounded to the TTL for non-critical reads.
//
// The clock and TTL are injected so tests can substitute a deterministic
// fake; entries also carry their own timestamp, so a stale entry is
// dropped on read even if the backing store outlives the TTL.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	Value    string    `json:"value"`
	CachedAt time.Time `json:"cachedAt"`
}

func NewBalanceCache(rdb *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// WithClock substitutes the time source, for tests.
func (c *BalanceCache) WithClock(now func() time.Time) *BalanceCache {
	c.now = now
	return c
}

func balanceKey(userID string) string { return fmt.Sprintf("wallet:balance:%s", userID) }
func summaryKey(userID string) string { return fmt.Sprintf("wallet:summary:%s", userID) }

// GetBalance returns a cached balance, or false on miss or expiry.
func (c *BalanceCache) GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool) {
	if c == nil || c.rdb == nil {
		return decimal.Zero, false
	}

	data, err := c.rdb.Get(ctx, balanceKey(userID)).Bytes()
	if err != nil {
		return decimal.Zero, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return decimal.Zero, false
	}
	if c.now().Sub(e.CachedAt) > c.ttl {
		return decimal.Zero, false
	}

	balance, err := decimal.NewFromString(e.Value)
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}

// SetBalance caches a balance for the configured TTL.
func (c *BalanceCache) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if c == nil || c.rdb == nil {
		return nil
	}

	data, err := json.Marshal(entry{Value: balance.String(), CachedAt: c.now()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, balanceKey(userID), data, c.ttl).Err()
}

// GetSummary returns a cached dashboard aggregate payload.
func (c *BalanceCache) GetSummary(ctx context.Context, userID string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, summaryKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetSummary caches a dashboard aggregate payload.
func (c *BalanceCache) SetSummary(ctx context.Context, userID string, payload []byte) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, summaryKey(userID), payload, c.ttl).Err()
}

// Invalidate removes all user-scoped keys. Called after every committed
// mutation touching the user.
func (c *BalanceCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, balanceKey(userID), summaryKey(userID)).Err()
}
