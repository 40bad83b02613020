package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/forecast-alert-service/internal/client"
	"github.com/kjstillabower/forecast-alert-service/internal/clock"
	"github.com/kjstillabower/forecast-alert-service/internal/forecast"
	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

// ErrUpstream is returned by Sync when no upstream part could be fetched.
var ErrUpstream = errors.New("upstream unavailable")

// Upstream part names recorded in ForecastSnapshot.Missing.
const (
	PartCurrent = "current"
	PartDaily   = "daily"
	PartHourly  = "hourly"
)

// AuditAppender records the forecast history row produced by a sync.
type AuditAppender interface {
	AppendAudit(ctx context.Context, rec models.AuditRecord) error
}

// Syncer fetches and normalizes one location's forecast.
type Syncer struct {
	client client.WeatherClient
	audit  AuditAppender
	clk    clock.Clock
	logger *zap.Logger
}

// NewSyncer creates a Syncer. audit may be nil to disable the history append.
func NewSyncer(wc client.WeatherClient, audit AuditAppender, clk clock.Clock, logger *zap.Logger) *Syncer {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{client: wc, audit: audit, clk: clk, logger: logger}
}

// Sync runs the current, daily and hourly calls concurrently and normalizes
// whatever succeeded. It fails with ErrUpstream only when all three fail; a
// partial result lists the failed parts in Missing.
func (s *Syncer) Sync(ctx context.Context, loc models.Location) (models.ForecastSnapshot, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.Int64("location_id", loc.ID))

	var (
		current                 *forecast.RawCurrent
		daily                   *forecast.RawDaily
		hourly                  *forecast.RawHourly
		curErr, dayErr, hourErr error
	)
	// plain Group: one failed part must not cancel the others
	var g errgroup.Group
	g.Go(func() error {
		current, curErr = s.client.CurrentConditions(ctx, loc.Latitude, loc.Longitude)
		return nil
	})
	g.Go(func() error {
		daily, dayErr = s.client.DailyForecast(ctx, loc.Latitude, loc.Longitude)
		return nil
	})
	g.Go(func() error {
		hourly, hourErr = s.client.HourlyForecast(ctx, loc.Latitude, loc.Longitude)
		return nil
	})
	_ = g.Wait()
	observability.SyncDurationSeconds.Observe(time.Since(start).Seconds())

	var missing []string
	var causes []error
	for _, part := range []struct {
		name string
		err  error
	}{{PartCurrent, curErr}, {PartDaily, dayErr}, {PartHourly, hourErr}} {
		if part.err != nil {
			missing = append(missing, part.name)
			causes = append(causes, fmt.Errorf("%s: %w", part.name, part.err))
		}
	}

	if len(missing) == 3 {
		observability.SyncLocationsTotal.WithLabelValues("error").Inc()
		return models.ForecastSnapshot{}, fmt.Errorf("%w: location %d: %w", ErrUpstream, loc.ID, errors.Join(causes...))
	}

	snap := forecast.Normalize(current, daily, hourly)
	snap.AsOf = s.clk.Now().UTC()
	if len(missing) > 0 {
		snap.Missing = missing
		observability.SyncLocationsTotal.WithLabelValues("partial").Inc()
		logger.Warn("partial forecast sync", zap.Strings("missing", missing), zap.Error(errors.Join(causes...)))
	} else {
		observability.SyncLocationsTotal.WithLabelValues("success").Inc()
	}

	if dayErr == nil {
		s.appendAudit(ctx, logger, loc, snap)
	}
	logger.Debug("forecast synced",
		zap.Int("hourly", len(snap.Hourly)),
		zap.Int("daily", len(snap.Daily)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

// appendAudit records today's prediction. Failures are counted and dropped.
func (s *Syncer) appendAudit(ctx context.Context, logger *zap.Logger, loc models.Location, snap models.ForecastSnapshot) {
	if s.audit == nil {
		return
	}
	today, ok := snap.Today()
	if !ok {
		return
	}
	rec := models.AuditRecord{
		LocationID: loc.ID,
		Date:       today.Date,
		MaxTemp:    today.MaxTemp,
		RainProb:   today.RainProb,
		Condition:  today.Condition,
	}
	if err := s.audit.AppendAudit(ctx, rec); err != nil {
		observability.AuditAppendFailuresTotal.Inc()
		logger.Debug("forecast audit append failed", zap.Error(err))
	}
}
