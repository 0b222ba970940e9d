package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientWithRedis(rdb), nil
}

// NewClientWithRedis wraps an existing Redis connection
func NewClientWithRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func dedupKey(key string) string {
	return fmt.Sprintf("webhook:dedup:%s", key)
}

func shopLockKey(shopID string) string {
	return fmt.Sprintf("lock:shop-sync:%s", shopID)
}

// MarkIfAbsent records a dedup key for ttl.
// Returns true when the key was not already recorded.
func (c *Client) MarkIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	fresh, err := c.rdb.SetNX(ctx, dedupKey(key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark failed: %w", err)
	}
	return fresh, nil
}

// AcquireShopLock takes the sync lock of a shop.
// The returned token is needed to release it.
func (c *Client) AcquireShopLock(ctx context.Context, shopID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	acquired, err := c.rdb.SetNX(ctx, shopLockKey(shopID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire shop lock failed: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseShopLock releases the sync lock of a shop if token still holds it
func (c *Client) ReleaseShopLock(ctx context.Context, shopID, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{shopLockKey(shopID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
