package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/store"
)

func benchSnapshot() models.ForecastSnapshot {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	snap := models.ForecastSnapshot{
		Current: models.Current{Temp: 29, Humidity: 78, RainProb: 30, Condition: "Cloudy"},
		AsOf:    now,
	}
	for i := 1; i <= 168; i++ {
		snap.Hourly = append(snap.Hourly, models.HourPoint{Time: now.Add(time.Duration(i) * time.Hour), Temp: 27, RainProb: i % 100, Condition: "Showers"})
	}
	for i := 0; i < 7; i++ {
		snap.Daily = append(snap.Daily, models.DayPoint{Date: now.AddDate(0, 0, i).Format("2006-01-02"), MaxTemp: 31, MinTemp: 24, RainProb: 40, Condition: "Rain"})
	}
	return snap
}

func BenchmarkSnapshotCache_Get_HotHit(b *testing.B) {
	ctx := context.Background()
	c := NewSnapshotCache(NewInMemoryCache(), time.Hour, store.NewMemoryStore(nil), nil)
	if err := c.Put(ctx, 1, benchSnapshot()); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, 1)
	}
}

func BenchmarkSnapshotCache_Get_DurableBackfill(b *testing.B) {
	ctx := context.Background()
	durable := store.NewMemoryStore(nil)
	if err := durable.UpsertSnapshot(ctx, 1, benchSnapshot()); err != nil {
		b.Fatal(err)
	}
	c := NewSnapshotCache(NoopCache{}, time.Hour, durable, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, 1)
	}
}

func BenchmarkSnapshotCodec(b *testing.B) {
	snap := benchSnapshot()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		raw, err := encodeSnapshot(snap)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := decodeSnapshot(raw); err != nil {
			b.Fatal(err)
		}
	}
}
