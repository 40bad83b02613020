package clock

import (
	"testing"
	"time"
)

func TestFake_SetAndAdd(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if got := f.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	f.Add(15 * time.Minute)
	if got := f.Now(); !got.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("Now() after Add = %v, want %v", got, start.Add(15*time.Minute))
	}
	later := start.Add(24 * time.Hour)
	f.Set(later)
	if got := f.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}
