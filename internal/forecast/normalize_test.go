package forecast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode[T any](t *testing.T, raw string) *T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return &v
}

const fullCurrent = `{
  "temperature": {"degrees": 30},
  "relativeHumidity": 78.4,
  "precipitation": {"probability": {"percent": 35}},
  "weatherCondition": {"description": {"text": "Light rain", "languageCode": "en"}}
}`

func TestConditionText_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "object form", in: `{"description": {"text": "Cloudy"}}`, want: "Cloudy"},
		{name: "string form", in: `{"description": "Sunny"}`, want: "Sunny"},
		{name: "null description", in: `{"description": null}`, want: DefaultCondition},
		{name: "absent description", in: `{}`, want: DefaultCondition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cond := decode[RawCondition](t, tc.in)
			assert.Equal(t, tc.want, conditionText(cond))
		})
	}
}

func TestConditionText_RejectsNumbers(t *testing.T) {
	var c RawCondition
	err := json.Unmarshal([]byte(`{"description": 42}`), &c)
	assert.Error(t, err)
}

func TestNormalize_Current(t *testing.T) {
	snap := Normalize(decode[RawCurrent](t, fullCurrent), nil, nil)

	assert.Equal(t, 30.0, snap.Current.Temp)
	assert.Equal(t, 78, snap.Current.Humidity)
	assert.Equal(t, 35, snap.Current.RainProb)
	assert.Equal(t, "Light rain", snap.Current.Condition)
	assert.NotNil(t, snap.Hourly)
	assert.NotNil(t, snap.Daily)
}

func TestNormalize_CurrentMissingEverything(t *testing.T) {
	snap := Normalize(decode[RawCurrent](t, `{}`), nil, nil)

	assert.Equal(t, 0.0, snap.Current.Temp)
	assert.Equal(t, 0, snap.Current.Humidity)
	assert.Equal(t, 0, snap.Current.RainProb)
	assert.Equal(t, DefaultCondition, snap.Current.Condition)
}

func TestNormalize_DailyMaxTempFallback(t *testing.T) {
	day := `{"forecastDays": [{"interval": {"startTime": "2026-10-19T00:30:00Z"}}]}`

	tests := []struct {
		name    string
		current string
		want    float64
	}{
		{name: "positive current temp", current: `{"temperature": {"degrees": 31.5}}`, want: 31.5},
		{name: "zero current temp", current: `{"temperature": {"degrees": 0}}`, want: 25},
		{name: "negative current temp", current: `{"temperature": {"degrees": -4}}`, want: 25},
		{name: "current missing", current: `{}`, want: 25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := Normalize(decode[RawCurrent](t, tc.current), decode[RawDaily](t, day), nil)
			require.Len(t, snap.Daily, 1)
			assert.Equal(t, tc.want, snap.Daily[0].MaxTemp)
		})
	}
}

func TestNormalize_DailyMaxTempFieldPriority(t *testing.T) {
	daily := `{"forecastDays": [
	  {"daytimeForecast": {"maxTemperature": {"degrees": 33}}, "highTemperature": {"degrees": 32}, "temperature": {"degrees": 31}},
	  {"highTemperature": {"degrees": 32}, "temperature": {"degrees": 31}},
	  {"temperature": {"degrees": 31}},
	  {"daytimeForecast": {"maxTemperature": {"degrees": 0}}, "temperature": {"degrees": 29}}
	]}`
	snap := Normalize(nil, decode[RawDaily](t, daily), nil)

	require.Len(t, snap.Daily, 4)
	assert.Equal(t, 33.0, snap.Daily[0].MaxTemp)
	assert.Equal(t, 32.0, snap.Daily[1].MaxTemp)
	assert.Equal(t, 31.0, snap.Daily[2].MaxTemp)
	assert.Equal(t, 29.0, snap.Daily[3].MaxTemp)
}

func TestNormalize_DailyMinTempFallback(t *testing.T) {
	day := `{"forecastDays": [{}]}`

	snap := Normalize(decode[RawCurrent](t, `{"temperature": {"degrees": 30}}`), decode[RawDaily](t, day), nil)
	require.Len(t, snap.Daily, 1)
	assert.Equal(t, 28.0, snap.Daily[0].MinTemp)

	snap = Normalize(nil, decode[RawDaily](t, day), nil)
	assert.Equal(t, 23.0, snap.Daily[0].MinTemp)

	withLow := `{"forecastDays": [{"lowTemperature": {"degrees": 24.5}}]}`
	snap = Normalize(decode[RawCurrent](t, `{"temperature": {"degrees": 30}}`), decode[RawDaily](t, withLow), nil)
	assert.Equal(t, 24.5, snap.Daily[0].MinTemp)
}

func TestNormalize_RainProbDefaultsAndClamps(t *testing.T) {
	hourly := `{"forecastHours": [
	  {"interval": {"startTime": "2026-10-19T10:00:00Z"}},
	  {"interval": {"startTime": "2026-10-19T11:00:00Z"}, "precipitation": {}},
	  {"interval": {"startTime": "2026-10-19T12:00:00Z"}, "precipitation": {"probability": {"percent": 140}}},
	  {"interval": {"startTime": "2026-10-19T13:00:00Z"}, "precipitation": {"probability": {"percent": -3}}},
	  {"interval": {"startTime": "2026-10-19T14:00:00Z"}, "precipitation": {"probability": {"percent": 44.6}}}
	]}`
	daily := `{"forecastDays": [{"daytimeForecast": {}}]}`
	snap := Normalize(decode[RawCurrent](t, `{}`), decode[RawDaily](t, daily), decode[RawHourly](t, hourly))

	want := []int{0, 0, 100, 0, 45}
	require.Len(t, snap.Hourly, len(want))
	for i, w := range want {
		assert.Equal(t, w, snap.Hourly[i].RainProb, "hour %d", i)
	}
	assert.Equal(t, 0, snap.Daily[0].RainProb)
	assert.Equal(t, 0, snap.Current.RainProb)
}

func TestNormalize_HourlyPreservesUpstreamOrder(t *testing.T) {
	hourly := `{"forecastHours": [
	  {"interval": {"startTime": "2026-10-19T12:00:00+05:30"}, "temperature": {"degrees": 29}, "weatherCondition": {"description": "Sunny"}},
	  {"interval": {"startTime": "2026-10-19T11:00:00+05:30"}, "temperature": {"degrees": 28}},
	  {"temperature": {"degrees": 27}}
	]}`
	snap := Normalize(nil, nil, decode[RawHourly](t, hourly))

	require.Len(t, snap.Hourly, 3)
	assert.Equal(t, time.Date(2026, 10, 19, 6, 30, 0, 0, time.UTC), snap.Hourly[0].Time)
	assert.Equal(t, time.Date(2026, 10, 19, 5, 30, 0, 0, time.UTC), snap.Hourly[1].Time)
	assert.True(t, snap.Hourly[2].Time.IsZero())
	assert.Equal(t, "Sunny", snap.Hourly[0].Condition)
	assert.Equal(t, DefaultCondition, snap.Hourly[1].Condition)
}

func TestNormalize_DayDateAndCondition(t *testing.T) {
	daily := `{"forecastDays": [{
	  "interval": {"startTime": "2026-10-19T18:30:00Z", "endTime": "2026-10-20T18:30:00Z"},
	  "daytimeForecast": {"weatherCondition": {"description": {"text": "Thunderstorm"}}, "precipitation": {"probability": {"percent": 80}}}
	}]}`
	snap := Normalize(nil, decode[RawDaily](t, daily), nil)

	require.Len(t, snap.Daily, 1)
	assert.Equal(t, "2026-10-19", snap.Daily[0].Date)
	assert.Equal(t, "Thunderstorm", snap.Daily[0].Condition)
	assert.Equal(t, 80, snap.Daily[0].RainProb)
}

func TestNormalize_Idempotent(t *testing.T) {
	current := decode[RawCurrent](t, fullCurrent)
	daily := decode[RawDaily](t, `{"forecastDays": [{"interval": {"startTime": "2026-10-19T00:00:00Z"}}, {}]}`)
	hourly := decode[RawHourly](t, `{"forecastHours": [{"interval": {"startTime": "2026-10-19T10:00:00Z"}, "temperature": {"degrees": 30}}]}`)

	first := Normalize(current, daily, hourly)
	second := Normalize(current, daily, hourly)
	assert.Equal(t, first, second)
}

func TestNormalize_AllNil(t *testing.T) {
	snap := Normalize(nil, nil, nil)
	assert.Equal(t, DefaultCondition, snap.Current.Condition)
	assert.Empty(t, snap.Hourly)
	assert.Empty(t, snap.Daily)
}
