package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// inFlightFetch is one upstream fetch that concurrent read-path misses wait on.
type inFlightFetch struct {
	done   chan struct{}
	result models.ForecastSnapshot
	err    error
}

// requestCoalescer collapses concurrent misses for the same location into one fetch.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[int64]*inFlightFetch
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[int64]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key or starts one with fn. shared reports
// whether the caller joined an existing fetch. The fetch runs detached from the
// caller's cancellation, bounded by the coalescer timeout, so one departing caller
// does not fail the others. Waiting respects ctx.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key int64, fn func(context.Context) (models.ForecastSnapshot, error)) (snap models.ForecastSnapshot, shared bool, err error) {
	rc.mu.Lock()
	f, exists := rc.inFlight[key]
	if !exists {
		f = &inFlightFetch{done: make(chan struct{})}
		rc.inFlight[key] = f
	}
	rc.mu.Unlock()

	if !exists {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		go func() {
			defer cancel()
			f.result, f.err = fn(fetchCtx)
			rc.cleanup(key)
			close(f.done)
		}()
	}

	select {
	case <-f.done:
		if f.err != nil {
			return models.ForecastSnapshot{}, exists, f.err
		}
		return f.result, exists, nil
	case <-ctx.Done():
		return models.ForecastSnapshot{}, exists, ctx.Err()
	}
}

// cleanup removes the in-flight entry for key so later misses start a new fetch.
func (rc *requestCoalescer) cleanup(key int64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}
