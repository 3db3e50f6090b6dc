// Package redis holds the state shared by every API instance: the random
// matchmaking queue and the ranking read cache. Both sit on one Cache,
// which owns the client and the key namespace.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key this service writes.
const DefaultKeyPrefix = "studyplan:"

const scanBatch = 100

var (
	ErrCacheMiss     = errors.New("redis: key not found")
	ErrCacheKeyEmpty = errors.New("redis: empty key")
)

// DefaultOptions returns the client settings used when the environment
// leaves them unset.
func DefaultOptions(addr string) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Cache is a go-redis client plus the key prefix.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache dials and pings. The client is closed again if the ping fails.
func NewCache(ctx context.Context, opts *redis.Options, prefix string) (*Cache, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return NewCacheFromClient(client, prefix), nil
}

func NewCacheFromClient(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Key applies the namespace prefix.
func (c *Cache) Key(key string) string { return c.prefix + key }

func (c *Cache) Close() error { return c.client.Close() }

// Ping backs the readiness probe.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// SetJSON stores value as JSON under the prefixed key.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	return c.client.Set(ctx, c.Key(key), data, ttl).Err()
}

// GetJSON decodes the stored value into dest, or returns ErrCacheMiss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

// DeleteByPrefix unlinks every key under prefix and returns how many went.
// SCAN does not block the server, so a concurrent writer may add a key
// behind the cursor; the ranking cache tolerates that because entries
// expire anyway.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrCacheKeyEmpty
	}

	var (
		deleted int
		batch   = make([]string, 0, scanBatch)
	)
	unlink := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}

	iter := c.client.Scan(ctx, 0, c.Key(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := unlink(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, unlink()
}
