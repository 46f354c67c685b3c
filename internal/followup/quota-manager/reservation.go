// internal/followup/quota-manager/reservation.go
package quotamanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotCounter tracks in-flight template creations per account.
type SlotCounter interface {
	// Reserve adds one reservation and returns the outstanding total including it.
	Reserve(ctx context.Context, accountID string, ttl time.Duration) (int, error)
	Release(ctx context.Context, accountID string) error
	Outstanding(ctx context.Context, accountID string) (int, error)
}

// RedisSlotCounter shares reservations across scheduler processes.
type RedisSlotCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSlotCounter(client redis.UniversalClient) *RedisSlotCounter {
	return &RedisSlotCounter{client: client, prefix: "followup:quota:reserved:"}
}

var releaseScript = redis.NewScript(`
local v = tonumber(redis.call("GET", KEYS[1]) or "0")
if v <= 1 then
	redis.call("DEL", KEYS[1])
	return 0
end
return redis.call("DECR", KEYS[1])
`)

func (c *RedisSlotCounter) Reserve(ctx context.Context, accountID string, ttl time.Duration) (int, error) {
	key := c.prefix + accountID
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reserve slot: %w", err)
	}
	return int(incr.Val()), nil
}

func (c *RedisSlotCounter) Release(ctx context.Context, accountID string) error {
	if err := releaseScript.Run(ctx, c.client, []string{c.prefix + accountID}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (c *RedisSlotCounter) Outstanding(ctx context.Context, accountID string) (int, error) {
	n, err := c.client.Get(ctx, c.prefix+accountID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reservations: %w", err)
	}
	return n, nil
}

// MemorySlotCounter is the single-process fallback when Redis is disabled.
type MemorySlotCounter struct {
	mu      sync.Mutex
	expiry  map[string][]time.Time
	nowFunc func() time.Time
}

func NewMemorySlotCounter() *MemorySlotCounter {
	return &MemorySlotCounter{expiry: make(map[string][]time.Time), nowFunc: time.Now}
}

func (c *MemorySlotCounter) prune(accountID string) []time.Time {
	now := c.nowFunc()
	live := c.expiry[accountID][:0]
	for _, exp := range c.expiry[accountID] {
		if exp.After(now) {
			live = append(live, exp)
		}
	}
	c.expiry[accountID] = live
	return live
}

func (c *MemorySlotCounter) Reserve(_ context.Context, accountID string, ttl time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := append(c.prune(accountID), c.nowFunc().Add(ttl))
	c.expiry[accountID] = live
	return len(live), nil
}

func (c *MemorySlotCounter) Release(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.prune(accountID)
	if len(live) > 0 {
		c.expiry[accountID] = live[1:]
	}
	return nil
}

func (c *MemorySlotCounter) Outstanding(_ context.Context, accountID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prune(accountID)), nil
}

// Reservation holds one template slot until Commit or Release.
type Reservation struct {
	AccountID string
	counter   SlotCounter
	done      atomic.Bool
}

// Commit is called once the template record exists locally, at which point
// the approved count covers the slot.
func (r *Reservation) Commit(ctx context.Context) error {
	return r.finish(ctx)
}

// Release gives the slot back after a failed creation.
func (r *Reservation) Release(ctx context.Context) error {
	return r.finish(ctx)
}

func (r *Reservation) finish(ctx context.Context) error {
	if r == nil || !r.done.CompareAndSwap(false, true) {
		return nil
	}
	return r.counter.Release(ctx, r.AccountID)
}
