package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "settings:system_configuration"

// Cache keeps the configuration row in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Fetch returns the cached configuration. ok is false on a miss.
func (c *Cache) Fetch(ctx context.Context) (SystemConfiguration, bool, error) {
	if c == nil || c.client == nil {
		return SystemConfiguration{}, false, nil
	}
	payload, err := c.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return SystemConfiguration{}, false, nil
	}
	if err != nil {
		return SystemConfiguration{}, false, err
	}
	var cfg SystemConfiguration
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return SystemConfiguration{}, false, err
	}
	return cfg, true, nil
}

// Store writes the configuration with the cache TTL.
func (c *Cache) Store(ctx context.Context, cfg SystemConfiguration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey, raw, c.ttl).Err()
}

// Invalidate drops the cached configuration.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey).Err()
}
