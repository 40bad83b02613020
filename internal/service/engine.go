package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/forecast-alert-service/internal/alert"
	"github.com/kjstillabower/forecast-alert-service/internal/clock"
	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/notify"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
)

// Dispatcher fans a message out to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message, channels ...string) []notify.Result
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Locations  store.LocationDirectory
	Cache      SnapshotCache
	Syncer     *Syncer
	Forecasts  *ForecastService
	Evaluator  *alert.Evaluator
	Dispatcher Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	// SyncConcurrency bounds how many locations sync at once.
	SyncConcurrency int
	// ReportChannels are the channels used by the batch report tick.
	ReportChannels []string
}

// Engine holds the scheduled job handlers and the manual alert trigger.
type Engine struct {
	locations      store.LocationDirectory
	cache          SnapshotCache
	syncer         *Syncer
	forecasts      *ForecastService
	evaluator      *alert.Evaluator
	dispatcher     Dispatcher
	clk            clock.Clock
	logger         *zap.Logger
	concurrency    int
	reportChannels []string
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 4
	}
	if len(cfg.ReportChannels) == 0 {
		cfg.ReportChannels = []string{notify.ChannelEmail, notify.ChannelTelegram}
	}
	return &Engine{
		locations:      cfg.Locations,
		cache:          cfg.Cache,
		syncer:         cfg.Syncer,
		forecasts:      cfg.Forecasts,
		evaluator:      cfg.Evaluator,
		dispatcher:     cfg.Dispatcher,
		clk:            cfg.Clock,
		logger:         cfg.Logger,
		concurrency:    cfg.SyncConcurrency,
		reportChannels: cfg.ReportChannels,
	}
}

// SyncTick refreshes every location: sync, write through, evaluate, dispatch.
// A failing location is logged and does not affect the others; only a failure
// to list locations fails the tick.
func (e *Engine) SyncTick(ctx context.Context) error {
	start := time.Now()
	locs, err := e.locations.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("sync tick: %w", err)
	}

	var failed, alerted int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, loc := range locs {
		loc := loc
		g.Go(func() error {
			sent, err := e.syncLocation(gctx, loc)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				e.logger.Warn("location sync failed",
					zap.Int64("location_id", loc.ID),
					zap.String("location", loc.Name),
					zap.Error(err))
			}
			if sent {
				atomic.AddInt32(&alerted, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("sync tick complete",
		zap.Int("locations", len(locs)),
		zap.Int32("failed", failed),
		zap.Int32("alerts", alerted),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *Engine) syncLocation(ctx context.Context, loc models.Location) (bool, error) {
	snap, err := e.syncer.Sync(ctx, loc)
	if err != nil {
		return false, err
	}
	if err := e.cache.Put(ctx, loc.ID, snap); err != nil {
		return false, err
	}

	now := e.clk.Now()
	payload, ok := e.evaluator.Evaluate(loc, snap, now)
	if !ok {
		return false, nil
	}
	observability.AlertsGeneratedTotal.WithLabelValues(string(payload.Kind)).Inc()
	e.dispatcher.Dispatch(ctx, notify.Message{Payload: payload, Location: loc, Snapshot: &snap, Now: now})
	return true, nil
}

// DigestTick pushes a next-hours summary for every location with cached data.
// It never calls upstream.
func (e *Engine) DigestTick(ctx context.Context) error {
	locs, err := e.locations.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("digest tick: %w", err)
	}
	now := e.clk.Now()
	sent := 0
	for _, loc := range locs {
		snap, ok := e.cached(ctx, loc)
		if !ok {
			continue
		}
		payload, ok := e.evaluator.Digest(loc, snap, now)
		if !ok {
			continue
		}
		observability.AlertsGeneratedTotal.WithLabelValues(string(payload.Kind)).Inc()
		e.dispatcher.Dispatch(ctx, notify.Message{Payload: payload, Location: loc, Snapshot: &snap, Now: now}, notify.ChannelPush)
		sent++
	}
	e.logger.Info("digest tick complete", zap.Int("locations", len(locs)), zap.Int("digests", sent))
	return nil
}

// BatchReportTick sends the scheduled report for every location with cached data.
func (e *Engine) BatchReportTick(ctx context.Context) error {
	locs, err := e.locations.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("batch report tick: %w", err)
	}
	now := e.clk.Now()
	sent := 0
	for _, loc := range locs {
		snap, ok := e.cached(ctx, loc)
		if !ok {
			e.logger.Debug("skipping report, no cached data", zap.Int64("location_id", loc.ID))
			continue
		}
		payload := e.evaluator.Report(loc, snap, now)
		observability.AlertsGeneratedTotal.WithLabelValues(string(payload.Kind)).Inc()
		e.dispatcher.Dispatch(ctx, notify.Message{Payload: payload, Location: loc, Snapshot: &snap, Now: now}, e.reportChannels...)
		sent++
	}
	e.logger.Info("batch report tick complete", zap.Int("locations", len(locs)), zap.Int("reports", sent))
	return nil
}

// TriggerManual sends an operator message for one location over every channel,
// using the cached snapshot or a fresh fetch.
func (e *Engine) TriggerManual(ctx context.Context, locationID int64, message string) (models.AlertPayload, []notify.Result, error) {
	loc, err := e.locations.GetLocation(ctx, locationID)
	if err != nil {
		return models.AlertPayload{}, nil, err
	}
	snap, err := e.forecasts.GetForecast(ctx, locationID)
	if err != nil {
		return models.AlertPayload{}, nil, err
	}
	now := e.clk.Now()
	payload := e.evaluator.Manual(loc, snap, message, now)
	observability.AlertsGeneratedTotal.WithLabelValues(string(payload.Kind)).Inc()
	results := e.dispatcher.Dispatch(ctx, notify.Message{Payload: payload, Location: loc, Snapshot: &snap, Now: now})
	return payload, results, nil
}

func (e *Engine) cached(ctx context.Context, loc models.Location) (models.ForecastSnapshot, bool) {
	snap, ok, err := e.cache.Get(ctx, loc.ID)
	if err != nil {
		e.logger.Warn("cache read failed", zap.Int64("location_id", loc.ID), zap.Error(err))
		return models.ForecastSnapshot{}, false
	}
	return snap, ok
}
