package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
)

// ErrForecastUnavailable is returned by the read path when a miss cannot be filled.
var ErrForecastUnavailable = errors.New("forecast unavailable")

// SnapshotCache is the cache the read path and the scheduler share.
type SnapshotCache interface {
	Get(ctx context.Context, locationID int64) (models.ForecastSnapshot, bool, error)
	Put(ctx context.Context, locationID int64, snap models.ForecastSnapshot) error
}

// ReadPathOptions configures ForecastService.
type ReadPathOptions struct {
	// CoalesceEnabled collapses concurrent misses for one location into one fetch.
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// ForecastService serves forecasts cache-first, fetching synchronously on a miss.
type ForecastService struct {
	cache     SnapshotCache
	locations store.LocationDirectory
	syncer    *Syncer
	misses    *missTracker
	coalescer *requestCoalescer // nil when disabled
	logger    *zap.Logger
}

func NewForecastService(cache SnapshotCache, locations store.LocationDirectory, syncer *Syncer, opts ReadPathOptions, logger *zap.Logger) *ForecastService {
	var coalescer *requestCoalescer
	if opts.CoalesceEnabled {
		if opts.CoalesceTimeout <= 0 {
			opts.CoalesceTimeout = 15 * time.Second
		}
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastService{
		cache:     cache,
		locations: locations,
		syncer:    syncer,
		misses:    newMissTracker(),
		coalescer: coalescer,
		logger:    logger,
	}
}

// GetForecast returns the cached snapshot for locationID, or fetches, caches and
// returns a fresh one on a miss. Unknown locations fail with store.ErrLocationNotFound;
// upstream failure on a miss fails with ErrForecastUnavailable; a failed write-through
// surfaces the storage error.
func (s *ForecastService) GetForecast(ctx context.Context, locationID int64) (models.ForecastSnapshot, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.Int64("location_id", locationID))

	cached, ok, err := s.cache.Get(ctx, locationID)
	if err != nil {
		observability.ForecastReadsTotal.WithLabelValues("error").Inc()
		return models.ForecastSnapshot{}, fmt.Errorf("read forecast %d: %w", locationID, err)
	}
	if ok {
		observability.ForecastReadsTotal.WithLabelValues("hit").Inc()
		logger.Debug("forecast served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, store.ErrLocationNotFound) {
			observability.ForecastReadsTotal.WithLabelValues("not_found").Inc()
		} else {
			observability.ForecastReadsTotal.WithLabelValues("error").Inc()
		}
		return models.ForecastSnapshot{}, fmt.Errorf("read forecast %d: %w", locationID, err)
	}

	concurrent, endMiss := s.misses.begin(locationID)
	defer endMiss()
	if concurrent > 1 {
		observability.ReadPathConcurrentMisses.Observe(float64(concurrent))
	}
	logger.Debug("cache miss, fetching upstream", zap.Int("concurrent_misses", concurrent))

	var snap models.ForecastSnapshot
	if s.coalescer != nil {
		var shared bool
		snap, shared, err = s.coalescer.GetOrDo(ctx, locationID, func(fctx context.Context) (models.ForecastSnapshot, error) {
			return s.fetchAndStore(fctx, logger, loc)
		})
		if shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
	} else {
		snap, err = s.fetchAndStore(ctx, logger, loc)
	}
	if err != nil {
		if errors.Is(err, ErrForecastUnavailable) {
			observability.ForecastReadsTotal.WithLabelValues("unavailable").Inc()
		} else {
			observability.ForecastReadsTotal.WithLabelValues("error").Inc()
		}
		return models.ForecastSnapshot{}, err
	}

	observability.ForecastReadsTotal.WithLabelValues("fetched").Inc()
	logger.Debug("forecast served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return snap, nil
}

// fetchAndStore syncs loc and writes the result through. Upstream failure wraps
// ErrForecastUnavailable; a failed write is returned as is so storage errors keep
// their own classification.
func (s *ForecastService) fetchAndStore(ctx context.Context, logger *zap.Logger, loc models.Location) (models.ForecastSnapshot, error) {
	snap, err := s.syncer.Sync(ctx, loc)
	if err != nil {
		return models.ForecastSnapshot{}, fmt.Errorf("%w: location %d: %w", ErrForecastUnavailable, loc.ID, err)
	}
	if err := s.cache.Put(ctx, loc.ID, snap); err != nil {
		logger.Warn("write-through after fetch failed", zap.Error(err))
		return models.ForecastSnapshot{}, fmt.Errorf("write through %d: %w", loc.ID, err)
	}
	return snap, nil
}
