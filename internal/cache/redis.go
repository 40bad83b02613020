package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// RedisCache implements Cache using redis string keys with native expiry.
type RedisCache struct {
	client *redis.Client
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	PoolSize int
}

// NewRedisCache connects to redis and pings it.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get implements Cache.Get. Returns false, nil on cache miss.
func (c *RedisCache) Get(ctx context.Context, key string) (models.ForecastSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ForecastSnapshot{}, false, nil
	}
	if err != nil {
		return models.ForecastSnapshot{}, false, fmt.Errorf("redis get: %w", err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return models.ForecastSnapshot{}, false, err
	}
	return snap, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.ForecastSnapshot, ttl time.Duration) error {
	raw, err := encodeSnapshot(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks if redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the redis client. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
