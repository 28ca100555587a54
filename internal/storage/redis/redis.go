package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"account_service/internal/storage"

	"github.com/redis/go-redis/v9"
)

// Cache is the session-store gateway over Redis: plain get/put/delete with
// TTL, a sliding-window counter, and set operations for the per-user token
// index. Values are stored as JSON.
type Cache struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*Cache, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Cache{
		client: client,
	}, nil
}

// Get unmarshals the value at key into dest. Absent keys report
// storage.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	const op = "storage.redis.Get"

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrCacheMiss
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	const op = "storage.redis.Put"

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Delete removes the given keys. Missing keys are a no-op.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	const op = "storage.redis.Delete"

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	const op = "storage.redis.Has"

	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// Counter returns the current value of an integer counter, zero when absent.
func (c *Cache) Counter(ctx context.Context, key string) (int64, error) {
	const op = "storage.redis.Counter"

	n, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// Increment bumps an integer counter and resets its TTL, so the window
// slides on every increment.
func (c *Cache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	const op = "storage.redis.Increment"

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return incr.Val(), nil
}

func (c *Cache) AddToSet(ctx context.Context, key, member string) error {
	const op = "storage.redis.AddToSet"

	if err := c.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) SetMembers(ctx context.Context, key string) ([]string, error) {
	const op = "storage.redis.SetMembers"

	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return members, nil
}

func (c *Cache) RemoveFromSet(ctx context.Context, key, member string) error {
	const op = "storage.redis.RemoveFromSet"

	if err := c.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// FlushAll clears the whole cache database. Maintenance use only.
func (c *Cache) FlushAll(ctx context.Context) error {
	const op = "storage.redis.FlushAll"

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) Close() {
	c.client.Close()
}
