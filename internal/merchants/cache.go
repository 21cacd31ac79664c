package merchants

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores merchant support answers. Get reports found=false on a miss.
type Cache interface {
	Get(ctx context.Context, domain string) (supported bool, found bool, err error)
	Set(ctx context.Context, domain string, supported bool, ttl time.Duration) error
}

const keyPrefix = "merchant:status:"

// RedisCache keeps answers in Redis under merchant:status:<domain>.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Connect creates a Redis client and checks it answers.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, domain string) (bool, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+domain).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *RedisCache) Set(ctx context.Context, domain string, supported bool, ttl time.Duration) error {
	val := "0"
	if supported {
		val = "1"
	}
	return c.client.Set(ctx, keyPrefix+domain, val, ttl).Err()
}

// MemoryCache is the in-process fallback used when Redis is not reachable.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	supported bool
	expires   time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, domain string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[domain]
	if !ok {
		return false, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, domain)
		return false, false, nil
	}
	return e.supported, true, nil
}

func (c *MemoryCache) Set(_ context.Context, domain string, supported bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{supported: supported}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[domain] = e
	return nil
}
