package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var transitions []string
	cb := New(Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
		Component:        "weather_api",
		Clock:            clk,
		OnStateChange: func(component string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Call() #%d error = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while circuit open")
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Second, Clock: clk})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	clk.Add(31 * time.Second)
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe Call() error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() after one probe = %v, want half_open", cb.State())
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("second probe Call() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() after two probes = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := New(Config{FailureThreshold: 1, Timeout: time.Second, Clock: clk})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	clk.Add(2 * time.Second)
	_ = cb.Call(ctx, func() error { return errBoom })

	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb := New(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func() error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call() error = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}
