package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// Cache is the hot tier in front of the durable snapshot store.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.ForecastSnapshot, bool, error)
	Set(ctx context.Context, key string, value models.ForecastSnapshot, ttl time.Duration) error
}

// keyPrefix namespaces snapshot keys in shared backends. Bump the version when
// the snapshot encoding changes.
const keyPrefix = "forecast:v1:"

func encodeSnapshot(snap models.ForecastSnapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decodeSnapshot(raw []byte) (models.ForecastSnapshot, error) {
	var snap models.ForecastSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.ForecastSnapshot{}, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, nil
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	clk  clock.Clock
}

type cacheEntry struct {
	value     models.ForecastSnapshot
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clock.System{})
}

// NewInMemoryCacheWithClock creates an in-memory cache that expires entries against clk.
func NewInMemoryCacheWithClock(clk clock.Clock) *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		clk:  clk,
	}
}

// Get returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.ForecastSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.ForecastSnapshot{}, false, nil
	}

	if c.clk.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.ForecastSnapshot{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores the snapshot with the given TTL, replacing any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.ForecastSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clk.Now().Add(ttl),
	}
	return nil
}

// NoopCache disables the hot tier; every Get misses.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) (models.ForecastSnapshot, bool, error) {
	return models.ForecastSnapshot{}, false, nil
}

func (NoopCache) Set(ctx context.Context, key string, value models.ForecastSnapshot, ttl time.Duration) error {
	return nil
}
