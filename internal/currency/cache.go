package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCache keeps rates in process memory. A zero TTL keeps them for the
// lifetime of the process; the source publishes at most once per business day.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	rate     Rate
	storedAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, code string) (*Rate, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[code]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false, nil
	}
	rate := entry.rate
	return &rate, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, code string, rate *Rate) error {
	c.mu.Lock()
	c.entries[code] = memoryEntry{rate: *rate, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// RedisCache shares rates between instances. Entries expire after the TTL;
// a zero TTL stores them without expiry.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "storefront:rate:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, code string) (*Rate, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached rate: %w", err)
	}

	var rate Rate
	if err := json.Unmarshal(raw, &rate); err != nil {
		return nil, false, fmt.Errorf("decode cached rate: %w", err)
	}
	return &rate, true, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, rate *Rate) error {
	raw, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("encode rate: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+code, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache rate: %w", err)
	}
	return nil
}
