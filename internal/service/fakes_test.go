package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/client"
	"github.com/kjstillabower/forecast-alert-service/internal/forecast"
	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/notify"
)

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

// fakeWeather serves canned payloads and fails per latitude and endpoint.
type fakeWeather struct {
	mu       sync.Mutex
	fail     map[float64]map[string]error
	rainProb int
	calls    atomic.Int32
	gate     chan struct{} // when non-nil, every call blocks until closed
}

func newFakeWeather(rainProb int) *fakeWeather {
	return &fakeWeather{fail: map[float64]map[string]error{}, rainProb: rainProb}
}

func (f *fakeWeather) failAt(lat float64, endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[lat] == nil {
		f.fail[lat] = map[string]error{}
	}
	f.fail[lat][endpoint] = err
}

func (f *fakeWeather) check(ctx context.Context, lat float64, endpoint string) error {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[lat][endpoint]
}

func (f *fakeWeather) CurrentConditions(ctx context.Context, lat, lon float64) (*forecast.RawCurrent, error) {
	if err := f.check(ctx, lat, client.EndpointCurrent); err != nil {
		return nil, err
	}
	return mustDecode[forecast.RawCurrent](fmt.Sprintf(`{
		"temperature": {"degrees": 30},
		"relativeHumidity": 70,
		"precipitation": {"probability": {"percent": %d}},
		"weatherCondition": {"description": {"text": "Cloudy"}}
	}`, f.rainProb)), nil
}

func (f *fakeWeather) DailyForecast(ctx context.Context, lat, lon float64) (*forecast.RawDaily, error) {
	if err := f.check(ctx, lat, client.EndpointDaily); err != nil {
		return nil, err
	}
	return mustDecode[forecast.RawDaily](`{"forecastDays": [{
		"interval": {"startTime": "2026-03-10T00:00:00Z", "endTime": "2026-03-11T00:00:00Z"},
		"daytimeForecast": {
			"maxTemperature": {"degrees": 31},
			"minTemperature": {"degrees": 24},
			"precipitation": {"probability": {"percent": 40}},
			"weatherCondition": {"description": {"text": "Showers"}}
		}
	}]}`), nil
}

func (f *fakeWeather) HourlyForecast(ctx context.Context, lat, lon float64) (*forecast.RawHourly, error) {
	if err := f.check(ctx, lat, client.EndpointHourly); err != nil {
		return nil, err
	}
	hours := make([]map[string]any, 0, 6)
	for i := 1; i <= 6; i++ {
		start := testNow.Add(time.Duration(i) * time.Hour)
		hours = append(hours, map[string]any{
			"interval":         map[string]string{"startTime": start.Format(time.RFC3339), "endTime": start.Add(time.Hour).Format(time.RFC3339)},
			"temperature":      map[string]float64{"degrees": 29},
			"precipitation":    map[string]any{"probability": map[string]int{"percent": f.rainProb}},
			"weatherCondition": map[string]any{"description": map[string]string{"text": "Cloudy"}},
		})
	}
	raw, err := json.Marshal(map[string]any{"forecastHours": hours})
	if err != nil {
		panic(err)
	}
	return mustDecode[forecast.RawHourly](string(raw)), nil
}

func mustDecode[T any](raw string) *T {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic(err)
	}
	return &v
}

// recordingDispatcher captures dispatched messages.
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []notify.Message
	channels [][]string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg notify.Message, channels ...string) []notify.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	d.channels = append(d.channels, channels)
	return []notify.Result{{Channel: notify.ChannelPush, Status: notify.StatusSent}}
}

func (d *recordingDispatcher) snapshot() ([]notify.Message, [][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.messages...), append([][]string(nil), d.channels...)
}

type failingAudit struct{ calls atomic.Int32 }

func (a *failingAudit) AppendAudit(ctx context.Context, rec models.AuditRecord) error {
	a.calls.Add(1)
	return fmt.Errorf("audit table locked")
}

var testLocations = []models.Location{
	{ID: 1, Name: "Warehouse-A", Latitude: 6.9, Longitude: 79.8, Email: "ops-a@example.com", TelegramChatID: "100"},
	{ID: 2, Name: "Warehouse-B", Latitude: 7.2, Longitude: 80.6},
	{ID: 3, Name: "Warehouse-C", Latitude: 8.3, Longitude: 80.4},
}
