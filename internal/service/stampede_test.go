package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissTracker_CountsPerLocation(t *testing.T) {
	m := newMissTracker()

	n1, end1 := m.begin(7)
	n2, end2 := m.begin(7)
	nOther, endOther := m.begin(8)
	assert.Equal(t, 1, n1)
	assert.Equal(t, 2, n2)
	assert.Equal(t, 1, nOther)

	end1()
	end1()
	assert.Equal(t, 1, m.inFlight(7), "repeated end must not double count")

	end2()
	endOther()
	assert.Equal(t, 0, m.inFlight(7))
	assert.Empty(t, m.pending)
}

func TestMissTracker_Concurrent(t *testing.T) {
	m := newMissTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, end := m.begin(id % 3)
			end()
		}(int64(i))
	}
	wg.Wait()
	assert.Empty(t, m.pending)
}
