// Package circuitbreaker guards upstream forecast calls so a failing provider
// is not hammered by every location on every sync tick.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
)

// ErrOpen is returned by Call while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for Timeout, then lets probe calls through in half-open state.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	clk              clock.Clock
	onStateChange    func(component string, from, to State)
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	Clock            clock.Clock
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(component string, from, to State)
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		clk:              cfg.Clock,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn when the circuit allows it. Context cancellation by the caller
// does not count as an upstream failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.clk.Now().Sub(cb.openedAt) < cb.timeout {
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.mu.Unlock()
	cb.notify(StateOpen, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	to := from
	if err != nil {
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			to = StateOpen
			cb.state = StateOpen
			cb.openedAt = cb.clk.Now()
			cb.failureCount = 0
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				to = StateClosed
				cb.state = StateClosed
				cb.successCount = 0
			}
		}
	}
	cb.mu.Unlock()
	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.component, from, to)
	}
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
