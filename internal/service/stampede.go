package service

import "sync"

// missTracker counts read-path misses that are fetching upstream at the same
// time, per location. More than one means a stampede the coalescer would absorb.
type missTracker struct {
	mu      sync.Mutex
	pending map[int64]int
}

func newMissTracker() *missTracker {
	return &missTracker{pending: make(map[int64]int)}
}

// begin registers a miss for locationID. It returns how many misses for that
// location are now pending, this one included, and the func that ends it.
func (m *missTracker) begin(locationID int64) (pending int, end func()) {
	m.mu.Lock()
	m.pending[locationID]++
	pending = m.pending[locationID]
	m.mu.Unlock()

	var once sync.Once
	return pending, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.pending[locationID]--; m.pending[locationID] <= 0 {
				delete(m.pending, locationID)
			}
		})
	}
}

func (m *missTracker) inFlight(locationID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[locationID]
}
