package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (models.ForecastSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.ForecastSnapshot{Current: models.Current{Temp: 10}}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.ForecastSnapshot, 10)
	errs := make([]error, 10)
	shared := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), 1, fn)
		}(i)
	}
	// let every caller register before the fetch completes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	leaders := 0
	for i := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v, want nil", i, errs[i])
		}
		if results[i].Current.Temp != 10 {
			t.Errorf("request %d temp = %v, want 10", i, results[i].Current.Temp)
		}
		if !shared[i] {
			leaders++
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", got)
	}
	if leaders != 1 {
		t.Errorf("leaders = %d, want 1", leaders)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("api failure")

	_, _, err := coalescer.GetOrDo(context.Background(), 1, func(ctx context.Context) (models.ForecastSnapshot, error) {
		return models.ForecastSnapshot{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls int32
	fn := func(ctx context.Context) (models.ForecastSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return models.ForecastSnapshot{}, nil
	}
	_, _, _ = coalescer.GetOrDo(context.Background(), 1, fn)
	_, _, _ = coalescer.GetOrDo(context.Background(), 2, fn)
	if calls != 2 {
		t.Errorf("fn call count = %d, want 2", calls)
	}
}

func TestRequestCoalescer_GetOrDo_CallerCancellation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := coalescer.GetOrDo(ctx, 1, func(ctx context.Context) (models.ForecastSnapshot, error) {
		<-release
		return models.ForecastSnapshot{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context.Canceled", err)
	}
}

func TestRequestCoalescer_FetchSurvivesCallerCancellation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var fetchErr atomic.Value
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _ = coalescer.GetOrDo(ctx, 1, func(fctx context.Context) (models.ForecastSnapshot, error) {
		time.Sleep(20 * time.Millisecond)
		if fctx.Err() != nil {
			fetchErr.Store(fctx.Err())
		}
		close(done)
		return models.ForecastSnapshot{}, nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never completed")
	}
	if v := fetchErr.Load(); v != nil {
		t.Errorf("fetch context error = %v, want nil", v)
	}
}
