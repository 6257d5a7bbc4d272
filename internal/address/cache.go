package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SonarSoftwareInc/importer/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Store is the persistent layer of the address cache. It survives across
// import runs; entries expire after the configured TTL. Implementations must
// be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, rec Record) error
	Flush(ctx context.Context) error
	Close() error
}

const redisKeyPrefix = "importer:address:"

// RedisStore persists validated addresses in Redis with a per-entry TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode cached address: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Flush removes every cached address. Walks the keyspace with SCAN so a large
// cache does not block the server the way KEYS would.
func (s *RedisStore) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Cache is the two-level address cache: an in-process LRU in front of an
// optional persistent store. Store unavailability is logged and treated as a
// miss — the cache must never fail a row.
type Cache struct {
	l1     *lruCache
	store  Store // may be nil: cache is then in-process only
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCache(capacity int, ttl time.Duration, store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		l1:     newLRU(capacity, ttl),
		store:  store,
		logger: logger.With("component", "address_cache"),
	}
}

func (c *Cache) Get(ctx context.Context, key string) (Record, bool) {
	if rec, ok := c.l1.get(key); ok {
		c.hits.Add(1)
		metrics.AddressCacheHits.Inc()
		return rec, true
	}

	if c.store != nil {
		rec, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache store lookup failed", "error", err)
		} else if ok {
			c.l1.put(key, rec)
			c.hits.Add(1)
			metrics.AddressCacheHits.Inc()
			return rec, true
		}
	}

	c.misses.Add(1)
	metrics.AddressCacheMisses.Inc()
	return Record{}, false
}

func (c *Cache) Put(ctx context.Context, key string, rec Record) {
	c.l1.put(key, rec)
	if c.store != nil {
		if err := c.store.Put(ctx, key, rec); err != nil {
			c.logger.Warn("cache store write failed", "error", err)
		}
	}
}

// Flush empties both levels.
func (c *Cache) Flush(ctx context.Context) error {
	c.l1.flush()
	if c.store != nil {
		return c.store.Flush(ctx)
	}
	return nil
}

// Stats returns hit and miss counts accumulated since construction.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
