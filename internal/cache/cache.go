// Package cache stores backend answers keyed on the question, so a
// repeated question is served without another backend round trip. Both an
// in-memory backend and a redis backend are available; caching is optional
// and off by default.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cmdline-assistant/clad/internal/domain"
)

// Cache is the interface over answer cache backends.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.BackendAnswer, bool)
	Set(ctx context.Context, key string, answer *domain.BackendAnswer, ttl time.Duration) error
}

// Key derives the cache key for a query: a SHA-256 over the model and the
// question text.
func Key(model, question string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + question))
	return "clad:answer:" + hex.EncodeToString(hash[:])
}

type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
}

type cacheItem struct {
	answer    domain.BackendAnswer
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{items: make(map[string]*cacheItem)}
	go c.cleanup()
	return c
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (*domain.BackendAnswer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, false
	}
	answer := item.answer
	return &answer, true
}

func (c *InMemoryCache) Set(ctx context.Context, key string, answer *domain.BackendAnswer, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem{
		answer:    *answer,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.BackendAnswer, bool) {
	text, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	return &domain.BackendAnswer{Text: text}, true
}

func (c *RedisCache) Set(ctx context.Context, key string, answer *domain.BackendAnswer, ttl time.Duration) error {
	return c.client.Set(ctx, key, answer.Text, ttl).Err()
}

var (
	_ Cache = (*InMemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
