package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForecastSnapshot_Upcoming(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := ForecastSnapshot{Hourly: []HourPoint{
		{Time: base.Add(-time.Hour), RainProb: 90},
		{Time: base, RainProb: 80},
		{Time: base.Add(time.Hour), RainProb: 10},
		{Time: base.Add(2 * time.Hour), RainProb: 20},
		{Time: base.Add(3 * time.Hour), RainProb: 30},
	}}

	got := snap.Upcoming(base, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, 10, got[0].RainProb, "points at or before now are excluded")
	assert.Equal(t, 20, got[1].RainProb)

	assert.Len(t, snap.Upcoming(base, 0), 3)
	assert.Empty(t, snap.Upcoming(base.Add(24*time.Hour), 6))
}

func TestForecastSnapshot_Today(t *testing.T) {
	_, ok := ForecastSnapshot{}.Today()
	assert.False(t, ok)

	d, ok := ForecastSnapshot{Daily: []DayPoint{{Date: "2026-03-01"}, {Date: "2026-03-02"}}}.Today()
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01", d.Date)
}
