// Package traffic keeps sliding windows of request outcomes for health reporting.
package traffic

import (
	"sync"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
)

// Outcome classifies one served request.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Denied
)

const defaultRetention = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
// Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	clk       clock.Clock
	retention time.Duration
	times     [3][]time.Time
}

// NewTracker returns a Tracker that keeps outcomes for retention (five minutes when zero).
func NewTracker(clk clock.Clock, retention time.Duration) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Tracker{clk: clk, retention: retention}
}

// Record appends one outcome.
func (t *Tracker) Record(o Outcome) {
	t.RecordN(o, 1)
}

// RecordN appends n outcomes at the same instant. Used for synthetic injection in testing mode.
func (t *Tracker) RecordN(o Outcome, n int) {
	if o < Success || o > Denied || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	for i := 0; i < n; i++ {
		t.times[o] = append(t.times[o], now)
	}
	t.pruneLocked(now)
}

// Snapshot is the outcome count within a window.
type Snapshot struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Denied    int `json:"denied"`
}

// Total counts every outcome, denials included.
func (s Snapshot) Total() int { return s.Successes + s.Failures + s.Denied }

// ErrorPct is failures over served requests (denials excluded), 0 when nothing was served.
func (s Snapshot) ErrorPct() int {
	served := s.Successes + s.Failures
	if served == 0 {
		return 0
	}
	return s.Failures * 100 / served
}

// Window returns outcome counts within the trailing window.
func (t *Tracker) Window(window time.Duration) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clk.Now().Add(-window)
	return Snapshot{
		Successes: countSince(t.times[Success], cutoff),
		Failures:  countSince(t.times[Failure], cutoff),
		Denied:    countSince(t.times[Denied], cutoff),
	}
}

// Reset clears every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
