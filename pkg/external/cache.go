package external

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/treatment-plan-assistant/internal/domain"
)

// LookupCache stores serialized lookup answers by key
type LookupCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// CacheClient wraps Redis client with caching functionality for lookup responses
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new Redis-backed cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get retrieves a cached value
func (c *CacheClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return val, true, nil
}

// Set stores a value, using the default TTL when ttl is zero
func (c *CacheClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.redis.Set(ctx, key, value, ttl).Err()
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// MemoryCache is an in-process LRU tier with a single TTL for all entries
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryCache creates an LRU cache holding at most size entries
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get retrieves a cached value
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := m.lru.Get(key)
	return val, ok, nil
}

// Set stores a value. The per-entry ttl is ignored; the LRU expires entries
// on its own schedule.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.lru.Add(key, value)
	return nil
}

// Len returns the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Close purges the cache
func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}

// TieredCache checks the memory tier first and falls back to Redis, promoting
// Redis hits into memory.
type TieredCache struct {
	memory *MemoryCache
	remote LookupCache
}

// NewTieredCache combines an in-process and a shared tier
func NewTieredCache(memory *MemoryCache, remote LookupCache) *TieredCache {
	return &TieredCache{memory: memory, remote: remote}
}

// Get retrieves a cached value from the first tier that has it
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, _ := t.memory.Get(ctx, key); ok {
		return val, true, nil
	}

	val, ok, err := t.remote.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	t.memory.Set(ctx, key, val, 0)
	return val, true, nil
}

// Set writes through both tiers
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.memory.Set(ctx, key, value, ttl)
	return t.remote.Set(ctx, key, value, ttl)
}

// Close closes both tiers
func (t *TieredCache) Close() error {
	t.memory.Close()
	return t.remote.Close()
}

// NewLookupCache builds the cache described by config, or returns nil when
// caching is disabled.
func NewLookupCache(config domain.CacheConfig) (LookupCache, error) {
	if !config.Enabled {
		return nil, nil
	}

	memory := NewMemoryCache(config.MemorySize, config.DefaultTTL)
	if config.RedisURL == "" {
		return memory, nil
	}

	remote, err := NewCacheClient(config)
	if err != nil {
		return nil, err
	}
	return NewTieredCache(memory, remote), nil
}

// lookupKey creates a standardized cache key for a drug lookup
func lookupKey(service, drug string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(drug))))
	return fmt.Sprintf("%s:drug:%x", service, hash[:8])
}
