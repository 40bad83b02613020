package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
)

const (
	layerHot     = "hot"
	layerDurable = "durable"
)

// SnapshotCache holds the latest snapshot per location: a hot Cache in front of
// the durable store. The durable store is authoritative; writes and backfills for
// one location are serialised so the hot tier never holds an older snapshot than
// the durable store.
type SnapshotCache struct {
	hot     Cache
	ttl     time.Duration
	durable store.SnapshotStore
	logger  *zap.Logger
	locks   sync.Map // int64 -> *sync.Mutex
}

// NewSnapshotCache wires the tiers. A nil hot cache disables the hot tier.
func NewSnapshotCache(hot Cache, ttl time.Duration, durable store.SnapshotStore, logger *zap.Logger) *SnapshotCache {
	if hot == nil {
		hot = NoopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SnapshotCache{hot: hot, ttl: ttl, durable: durable, logger: logger}
}

func hotKey(locationID int64) string {
	return strconv.FormatInt(locationID, 10)
}

func (c *SnapshotCache) lock(locationID int64) func() {
	v, _ := c.locks.LoadOrStore(locationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Get returns the snapshot for locationID. ok=false with a nil error is a miss.
// Hot tier failures fall through to the durable store; durable failures are returned.
func (c *SnapshotCache) Get(ctx context.Context, locationID int64) (models.ForecastSnapshot, bool, error) {
	start := time.Now()
	snap, ok, err := c.hot.Get(ctx, hotKey(locationID))
	observeOp(layerHot, "get", start, err)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(layerHot, "get").Inc()
		c.logger.Warn("hot cache get failed", zap.Int64("location_id", locationID), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(layerHot).Inc()
		return snap, true, nil
	}

	unlock := c.lock(locationID)
	defer unlock()
	start = time.Now()
	snap, ok, err = c.durable.GetSnapshot(ctx, locationID)
	observeOp(layerDurable, "get", start, err)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(layerDurable, "get").Inc()
		return models.ForecastSnapshot{}, false, fmt.Errorf("get snapshot %d: %w", locationID, err)
	}
	if !ok {
		observability.CacheMissesTotal.Inc()
		return models.ForecastSnapshot{}, false, nil
	}
	observability.CacheHitsTotal.WithLabelValues(layerDurable).Inc()
	c.setHot(ctx, locationID, snap)
	return snap, true, nil
}

// Put writes snap through both tiers. Only the durable write can fail the call.
func (c *SnapshotCache) Put(ctx context.Context, locationID int64, snap models.ForecastSnapshot) error {
	unlock := c.lock(locationID)
	defer unlock()
	start := time.Now()
	err := c.durable.UpsertSnapshot(ctx, locationID, snap)
	observeOp(layerDurable, "upsert", start, err)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(layerDurable, "upsert").Inc()
		return fmt.Errorf("put snapshot %d: %w", locationID, err)
	}
	c.setHot(ctx, locationID, snap)
	return nil
}

// AppendAudit passes rec through to the durable store.
func (c *SnapshotCache) AppendAudit(ctx context.Context, rec models.AuditRecord) error {
	start := time.Now()
	err := c.durable.AppendForecastAudit(ctx, rec)
	observeOp(layerDurable, "audit", start, err)
	return err
}

// Warm loads durable snapshots for locationIDs into the hot tier concurrently.
// Missing snapshots are skipped; the first durable error is returned.
func (c *SnapshotCache) Warm(ctx context.Context, locationIDs []int64) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range locationIDs {
		id := id
		g.Go(func() error {
			unlock := c.lock(id)
			defer unlock()
			snap, ok, err := c.durable.GetSnapshot(gctx, id)
			if err != nil {
				return fmt.Errorf("warm %d: %w", id, err)
			}
			if ok {
				c.setHot(gctx, id, snap)
			}
			return nil
		})
	}
	err := g.Wait()
	c.logger.Info("cache warming complete",
		zap.Int("locations", len(locationIDs)),
		zap.Float64("duration_seconds", time.Since(start).Seconds()),
		zap.Error(err))
	return err
}

func (c *SnapshotCache) setHot(ctx context.Context, locationID int64, snap models.ForecastSnapshot) {
	start := time.Now()
	err := c.hot.Set(ctx, hotKey(locationID), snap, c.ttl)
	observeOp(layerHot, "set", start, err)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(layerHot, "set").Inc()
		c.logger.Warn("hot cache set failed", zap.Int64("location_id", locationID), zap.Error(err))
	}
}

func observeOp(layer, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(layer, op, result).Observe(time.Since(start).Seconds())
}
