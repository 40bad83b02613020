package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-alert-service/internal/observability"
	"github.com/kjstillabower/forecast-alert-service/internal/traffic"
)

const correlationHeader = "X-Correlation-ID"

// CorrelationIDMiddleware reuses or assigns a correlation id and stores it, plus a
// request-scoped logger, in the request context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get(correlationHeader)
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set(correlationHeader, corrID)

			ctx := observability.WithCorrelationID(r.Context(), corrID)
			ctx = observability.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request count and duration, and holds each request in
// tracker until it returns.
func MetricsMiddleware(tracker *InFlightTracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer tracker.Begin()()

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := routeTemplate(r)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplate keeps the route label bounded: ids never become label values.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so /ws upgrades survive the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded. Apply only to routes that need it.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted. Disabled when limiter is nil.
// Denials are recorded in outcomes when it is non-nil.
func RateLimitMiddleware(limiter *rate.Limiter, outcomes *traffic.Tracker) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("rate limit denied")
				observability.RateLimitDeniedTotal.Inc()
				if outcomes != nil {
					outcomes.Record(traffic.Denied)
				}
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
