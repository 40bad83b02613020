package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/notify"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/scheduler"
	"github.com/kjstillabower/forecast-alert-service/internal/service"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
	"github.com/kjstillabower/forecast-alert-service/internal/traffic"
	"github.com/kjstillabower/forecast-alert-service/internal/validation"
)

// ForecastReader serves the cache-first read path.
type ForecastReader interface {
	GetForecast(ctx context.Context, locationID int64) (models.ForecastSnapshot, error)
}

// ManualAlerter sends an operator alert for one location.
type ManualAlerter interface {
	TriggerManual(ctx context.Context, locationID int64, message string) (models.AlertPayload, []notify.Result, error)
}

// Broadcaster pushes an event to every connected push listener.
type Broadcaster interface {
	Broadcast(event string, data any) (int, error)
}

// JobRunner fires scheduled jobs on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
	Jobs() []string
}

// HealthConfig holds health thresholds and dependency probes.
type HealthConfig struct {
	// Window and ErrorPct mark the service degraded when the share of failed
	// forecast reads within Window reaches ErrorPct.
	Window   time.Duration
	ErrorPct int
	// Checks are dependency probes reported by name. A failing "store" check
	// degrades the service; other failures are reported only.
	Checks    map[string]func(ctx context.Context) error
	StartTime time.Time
}

// Deps wires a Handler.
type Deps struct {
	Forecasts ForecastReader
	Locations store.LocationDirectory
	Alerts    ManualAlerter
	Jobs      JobRunner
	Health    *HealthConfig
	Outcomes  *traffic.Tracker
	Logger    *zap.Logger
	// Push carries location-free operator broadcasts; POST /alerts fails without it.
	Push Broadcaster
	// MessageMaxLen bounds manual alert messages; zero uses the validation default.
	MessageMaxLen int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts     ForecastReader
	locations     store.LocationDirectory
	alerts        ManualAlerter
	push          Broadcaster
	jobs          JobRunner
	health        *HealthConfig
	outcomes      *traffic.Tracker
	logger        *zap.Logger
	messageMaxLen int

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Outcomes == nil {
		d.Outcomes = traffic.NewTracker(nil, 0)
	}
	if d.Health == nil {
		d.Health = &HealthConfig{}
	}
	if d.Health.Window <= 0 {
		d.Health.Window = time.Minute
	}
	if d.Health.StartTime.IsZero() {
		d.Health.StartTime = time.Now()
	}
	return &Handler{
		forecasts:     d.Forecasts,
		locations:     d.Locations,
		alerts:        d.Alerts,
		push:          d.Push,
		jobs:          d.Jobs,
		health:        d.Health,
		outcomes:      d.Outcomes,
		logger:        d.Logger,
		messageMaxLen: d.MessageMaxLen,
	}
}

// SetShuttingDown flips the drain flag. /health reports shutting-down while it is set.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetForecast handles GET /forecast/{locationID}.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseLocationID(mux.Vars(r)["locationID"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION_ID", err.Error())
		return
	}

	snap, err := h.forecasts.GetForecast(r.Context(), id)
	if err != nil {
		h.writeReadError(w, r, err)
		return
	}
	h.outcomes.Record(traffic.Success)
	writeJSON(w, http.StatusOK, snap)
}

// ListLocations handles GET /locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.locations.ListLocations(r.Context())
	if err != nil {
		h.logFromRequest(r).Warn("list locations failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to list locations")
		return
	}
	if locs == nil {
		locs = []models.Location{}
	}
	writeJSON(w, http.StatusOK, locs)
}

type manualAlertRequest struct {
	Message string `json:"message"`
}

type manualAlertResponse struct {
	Alert   models.AlertPayload `json:"alert"`
	Results []notify.Result     `json:"results"`
}

// PostAlert handles POST /alerts/{locationID}. The optional JSON body carries the
// operator message; an empty body sends the current conditions line.
func (h *Handler) PostAlert(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseLocationID(mux.Vars(r)["locationID"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION_ID", err.Error())
		return
	}

	var body manualAlertRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON {\"message\": string}")
		return
	}
	message, err := validation.ValidateMessage(body.Message, h.messageMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MESSAGE", err.Error())
		return
	}

	payload, results, err := h.alerts.TriggerManual(r.Context(), id, message)
	if err != nil {
		h.writeReadError(w, r, err)
		return
	}
	h.outcomes.Record(traffic.Success)
	writeJSON(w, http.StatusOK, manualAlertResponse{Alert: payload, Results: results})
}

type broadcastRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type broadcastResponse struct {
	Alert     models.AlertPayload `json:"alert"`
	Listeners int                 `json:"listeners"`
}

// PostBroadcast handles POST /alerts. It pushes an operator {title, body} to every
// push listener; e-mail and Telegram are location-scoped and not used.
func (h *Handler) PostBroadcast(w http.ResponseWriter, r *http.Request) {
	var body broadcastRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON {\"title\": string, \"body\": string}")
		return
	}
	title, err := validation.ValidateMessage(body.Title, h.messageMaxLen)
	if err == nil && title == "" {
		err = errors.New("title is required")
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MESSAGE", "title: "+err.Error())
		return
	}
	text, err := validation.ValidateMessage(body.Body, h.messageMaxLen)
	if err == nil && text == "" {
		err = errors.New("body is required")
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MESSAGE", "body: "+err.Error())
		return
	}

	if h.push == nil {
		writeError(w, r, http.StatusServiceUnavailable, "PUSH_UNAVAILABLE", "Push channel not configured")
		return
	}
	payload := models.AlertPayload{
		Kind:        models.KindManual,
		Title:       title,
		Body:        text,
		GeneratedAt: time.Now().UTC(),
	}
	observability.AlertsGeneratedTotal.WithLabelValues(string(payload.Kind)).Inc()
	n, err := h.push.Broadcast(notify.EventAlert, payload)
	if err != nil {
		observability.NotificationsTotal.WithLabelValues(notify.ChannelPush, notify.StatusError).Inc()
		h.logFromRequest(r).Warn("manual broadcast failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "PUSH_UNAVAILABLE", "Push channel unavailable")
		return
	}
	observability.NotificationsTotal.WithLabelValues(notify.ChannelPush, notify.StatusSent).Inc()
	h.logFromRequest(r).Info("manual broadcast sent", zap.Int("listeners", n))
	writeJSON(w, http.StatusOK, broadcastResponse{Alert: payload, Listeners: n})
}

// writeReadError maps read-path errors to the error envelope.
func (h *Handler) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.logFromRequest(r)
	switch {
	case errors.Is(err, store.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Unknown location")
	case errors.Is(err, service.ErrForecastUnavailable):
		h.outcomes.Record(traffic.Failure)
		logger.Debug("upstream error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE", "Unable to fetch forecast data")
	case errors.Is(err, context.DeadlineExceeded):
		h.outcomes.Record(traffic.Failure)
		logger.Debug("request timed out", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE", "Timed out fetching forecast data")
	default:
		h.outcomes.Record(traffic.Failure)
		logger.Warn("forecast read failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Forecast storage unavailable")
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "forecast-alert-service",
		"version":   "dev",
		"checks":    result.checks,
		"uptime":    time.Since(h.health.StartTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > read error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := h.runChecks(ctx)
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if checks["store"] == "unhealthy" {
		return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", checks}
	}
	if h.health.ErrorPct > 0 {
		win := h.outcomes.Window(h.health.Window)
		if win.Successes+win.Failures > 0 && win.ErrorPct() >= h.health.ErrorPct {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	out := make(map[string]string, len(h.health.Checks))
	names := make([]string, 0, len(h.health.Checks))
	for name := range h.health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.health.Checks[name](cctx)
		cancel()
		if err != nil {
			out[name] = "unhealthy"
			h.logger.Debug("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		out[name] = "healthy"
	}
	return out
}

// GetTestStatus handles GET /test. Returns recent outcome counts and the job table.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	var jobs []string
	if h.jobs != nil {
		jobs = h.jobs.Jobs()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_length": h.health.Window.String(),
		"outcomes":      h.outcomes.Window(h.health.Window),
		"jobs":          jobs,
		"shutting_down": h.shuttingDown.Load(),
	})
}

// PostTestJob handles POST /test/jobs/{name}: runs one scheduled job synchronously.
func (h *Handler) PostTestJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_JOB", "no scheduler configured")
		return
	}
	name, err := validation.ValidateJobName(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JOB", err.Error())
		return
	}
	start := time.Now()
	err = h.jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_JOB", "unknown job: "+name)
		return
	case err != nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":       false,
			"job":      name,
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"job":      name,
		"duration": time.Since(start).String(),
	})
}

// PostTestAction handles POST /test/{action} for reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "reset":
		h.outcomes.Reset()
		h.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "reset",
			"message": "All simulated state cleared",
		})
	case "shutdown":
		h.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "shutdown",
			"message": "Shutting-down flag set",
		})
	case "error":
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
			body.Count = 1
		}
		h.outcomes.RecordN(traffic.Failure, body.Count)
		result := h.computeHealthStatus(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":             true,
			"action":         "error",
			"state":          result.status,
			"error_rate_pct": h.outcomes.Window(h.health.Window).ErrorPct(),
		})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

func (h *Handler) logFromRequest(r *http.Request) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with code, message and the
// request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
