package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// memcached treats expirations above 30 days as absolute unix times.
const maxRelativeExpiry = 30 * 24 * time.Hour

// MemcachedCache is a hot tier shared by every replica through memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache takes a comma-separated server list such as
// "cache-1:11211,cache-2:11211". Zero timeout or maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

// parseAddrs splits a comma-separated server list, dropping blanks.
func parseAddrs(addrs string) []string {
	var out []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) Get(ctx context.Context, key string) (models.ForecastSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.ForecastSnapshot{}, false, err
	}
	item, err := c.client.Get(keyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.ForecastSnapshot{}, false, nil
	}
	if err != nil {
		return models.ForecastSnapshot{}, false, fmt.Errorf("memcached get: %w", err)
	}
	snap, err := decodeSnapshot(item.Value)
	if err != nil {
		return models.ForecastSnapshot{}, false, err
	}
	return snap, true, nil
}

func (c *MemcachedCache) Set(ctx context.Context, key string, value models.ForecastSnapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeSnapshot(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(&memcache.Item{Key: keyPrefix + key, Value: raw, Expiration: expirySeconds(ttl)}); err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// expirySeconds clamps ttl into memcached's relative expiry range. Non-positive
// ttls fall back to one hour so nothing is stored forever.
func expirySeconds(ttl time.Duration) int32 {
	switch {
	case ttl <= 0:
		return int32(time.Hour / time.Second)
	case ttl > maxRelativeExpiry:
		return int32(maxRelativeExpiry / time.Second)
	case ttl < time.Second:
		return 1
	}
	return int32(ttl / time.Second)
}

// Ping reports whether every configured server answers.
func (c *MemcachedCache) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
