package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterConfig selects the optional parts of the route table.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	// Push serves GET /ws; the route is omitted when nil.
	Push http.Handler
	// Metrics serves GET /metrics; the route is omitted when nil.
	Metrics     http.Handler
	TestingMode bool
	InFlight    *InFlightTracker
	Logger      *zap.Logger
}

// NewRouter builds the route table. Rate limiting and the request timeout apply to
// the forecast, location and alert routes only.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.InFlight == nil {
		cfg.InFlight = &InFlightTracker{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(cfg.Logger))
	router.Use(MetricsMiddleware(cfg.InFlight))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	if cfg.Push != nil {
		router.Handle("/ws", cfg.Push).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, h.outcomes))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/forecast/{locationID}", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	api.HandleFunc("/alerts", h.PostBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{locationID}", h.PostAlert).Methods(http.MethodPost)

	if cfg.TestingMode {
		cfg.Logger.Warn("Testing mode enabled; /test endpoints exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/jobs/{name}", h.PostTestJob).Methods(http.MethodPost)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}
	return router
}
