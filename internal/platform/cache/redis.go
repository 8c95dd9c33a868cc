package cache

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/fatflowers/payflow/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Client wraps redis but fails safe: connectivity errors degrade to cache
// misses, and an unconfigured client is a no-op. Nothing correctness-
// critical may live behind it.
type Client struct {
	client *redis.Client
}

func New(cfg *cfgpkg.Config) *Client {
	if cfg.Redis.Addr == "" {
		return &Client{}
	}
	return &Client{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})}
}

// SetNX sets the key if absent and reports whether this caller won. When
// redis is unavailable every caller "wins" so processing always proceeds.
func (c *Client) SetNX(ctx context.Context, key string, value string, ttl time.Duration) bool {
	if c == nil || c.client == nil {
		return true
	}
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Get returns the value or "" on miss or redis unavailability.
func (c *Client) Get(ctx context.Context, key string) string {
	if c == nil || c.client == nil {
		return ""
	}
	res, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return ""
	}
	return res
}

// Delete removes a key, ignoring redis errors.
func (c *Client) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, key).Err()
}

var Module = fx.Options(
	fx.Provide(New),
)
