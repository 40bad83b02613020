package http

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

// InFlightTracker counts requests being served so shutdown can drain them.
// It also drives the http_requests_in_flight gauge.
type InFlightTracker struct {
	count atomic.Int64
}

// Begin marks a request as started. The returned func ends it; extra calls are no-ops.
func (t *InFlightTracker) Begin() (done func()) {
	t.count.Add(1)
	observability.HTTPRequestsInFlight.Inc()
	var ended atomic.Bool
	return func() {
		if ended.CompareAndSwap(false, true) {
			t.count.Add(-1)
			observability.HTTPRequestsInFlight.Dec()
		}
	}
}

func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// Drain polls every interval until no request is in flight. When ctx ends first
// the error reports how many were left.
func (t *InFlightTracker) Drain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d requests still in flight: %w", t.Count(), ctx.Err())
		case <-ticker.C:
		}
	}
}
