package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-alert-service/internal/alert"
	"github.com/kjstillabower/forecast-alert-service/internal/cache"
	"github.com/kjstillabower/forecast-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/forecast-alert-service/internal/client"
	"github.com/kjstillabower/forecast-alert-service/internal/clock"
	"github.com/kjstillabower/forecast-alert-service/internal/config"
	httphandler "github.com/kjstillabower/forecast-alert-service/internal/http"
	"github.com/kjstillabower/forecast-alert-service/internal/notify"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/scheduler"
	"github.com/kjstillabower/forecast-alert-service/internal/service"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
	"github.com/kjstillabower/forecast-alert-service/internal/traffic"
)

const (
	jobSync        = "sync"
	jobDigest      = "digest"
	jobBatchReport = "batch-report"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition", zap.String("component", component),
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	weatherClient, err := client.NewGoogleWeatherClient(client.Config{
		APIKey:         cfg.WeatherAPIKey,
		BaseURL:        cfg.WeatherAPIURL,
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Days:           cfg.ForecastDays,
		Hours:          cfg.ForecastHours,
		PageSize:       cfg.HourlyPageSize,
		Breaker:        breaker,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	st, err := openStore(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}

	hot, hotPing, hotClose, err := openHotCache(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("hot cache", zap.Error(err))
	}
	snapshots := cache.NewSnapshotCache(hot, cfg.CacheTTL, st, logger)

	if cfg.WarmOnStart {
		locs, err := st.ListLocations(startCtx)
		if err != nil {
			logger.Warn("cache warming skipped", zap.Error(err))
		} else {
			ids := make([]int64, 0, len(locs))
			for _, l := range locs {
				ids = append(ids, l.ID)
			}
			if err := snapshots.Warm(startCtx, ids); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
		}
	}

	clk := clock.System{}
	syncer := service.NewSyncer(weatherClient, snapshots, clk, logger)
	forecasts := service.NewForecastService(snapshots, st, syncer, service.ReadPathOptions{
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, logger)
	evaluator := alert.NewEvaluator(alert.Config{
		Threshold:   cfg.AlertThreshold,
		Lookahead:   cfg.AlertLookahead,
		DigestHours: cfg.AlertDigestHours,
		Location:    cfg.Timezone,
	})

	hub := notify.NewHub(logger, cfg.PushBuffer)
	notifiers := []notify.Notifier{notify.NewPushNotifier(hub)}
	if cfg.EmailEnabled {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			FromName: cfg.MailFromName,
			FromAddr: cfg.MailFromAddr,
			TLS:      cfg.SMTPTLS,
			Timeout:  cfg.NotifyTimeout,
		})
		if err != nil {
			logger.Fatal("smtp mailer", zap.Error(err))
		}
		notifiers = append(notifiers, notify.NewEmailNotifier(mailer, cfg.Timezone, cfg.MailLogoPath))
		logger.Info("email channel enabled", zap.String("smtp_host", cfg.SMTPHost))
	}
	if cfg.TelegramEnabled {
		bot, err := notify.NewBotClient(cfg.TelegramBotToken, cfg.TelegramAPIURL, cfg.NotifyTimeout)
		if err != nil {
			logger.Fatal("telegram client", zap.Error(err))
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Timezone))
		logger.Info("telegram channel enabled")
	}
	fanOut := notify.NewFanOut(logger, cfg.NotifyTimeout, notifiers...)

	engine := service.NewEngine(service.EngineConfig{
		Locations:       st,
		Cache:           snapshots,
		Syncer:          syncer,
		Forecasts:       forecasts,
		Evaluator:       evaluator,
		Dispatcher:      fanOut,
		Clock:           clk,
		Logger:          logger,
		SyncConcurrency: cfg.SyncConcurrency,
	})

	sched, err := scheduler.New(cfg.Timezone, logger,
		scheduler.Job{Name: jobSync, Specs: []string{cfg.SyncSpec}, Handler: engine.SyncTick, Timeout: cfg.JobTimeout},
		scheduler.Job{Name: jobDigest, Specs: []string{cfg.DigestSpec}, Handler: engine.DigestTick, Timeout: cfg.JobTimeout},
		scheduler.Job{Name: jobBatchReport, Specs: cfg.ReportSpecs, Handler: engine.BatchReportTick, Timeout: cfg.JobTimeout},
	)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	checks := map[string]func(ctx context.Context) error{"store": st.Ping}
	if hotPing != nil {
		checks["cache"] = hotPing
	}
	outcomes := traffic.NewTracker(clk, cfg.HealthWindow)
	handler := httphandler.NewHandler(httphandler.Deps{
		Forecasts: forecasts,
		Locations: st,
		Alerts:    engine,
		Push:      hub,
		Jobs:      sched,
		Health: &httphandler.HealthConfig{
			Window:    cfg.HealthWindow,
			ErrorPct:  cfg.HealthErrorPct,
			Checks:    checks,
			StartTime: time.Now(),
		},
		Outcomes:      outcomes,
		Logger:        logger,
		MessageMaxLen: cfg.MessageMaxLength,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Push:           hub,
		Metrics:        observability.MetricsHandler(),
		TestingMode:    cfg.TestingMode,
		InFlight:       inFlight,
		Logger:         logger,
	})
	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoints exposed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	sched.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler jobs still running", zap.Error(err))
	}
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.Drain(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if hotClose != nil {
		if err := hotClose(); err != nil {
			logger.Error("hot cache close", zap.Error(err))
		}
	}
	st.Close()
	logger.Info("shutdown complete")
}

// openStore returns the configured durable store. Postgres gets its schema and seed
// locations applied on every start.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		if len(cfg.SeedLocations) > 0 {
			if err := pg.SeedLocations(ctx, cfg.SeedLocations); err != nil {
				pg.Close()
				return nil, err
			}
		}
		logger.Info("store backend: postgres", zap.Int("seed_locations", len(cfg.SeedLocations)))
		return pg, nil
	default:
		logger.Info("store backend: memory", zap.Int("locations", len(cfg.SeedLocations)))
		return store.NewMemoryStore(cfg.SeedLocations), nil
	}
}

// openHotCache returns the hot tier plus its health probe and closer, both nil when
// the backend has none.
func openHotCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func(context.Context) error, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, mc.Close, nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return rc, rc.Ping, rc.Close, nil
	case config.CacheNone:
		logger.Info("cache backend: none")
		return nil, nil, nil, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, nil, nil
	}
}
