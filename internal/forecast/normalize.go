// Package forecast converts raw provider payloads into models.ForecastSnapshot.
package forecast

import (
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

const (
	// DefaultCondition is used when the provider omits the condition block.
	DefaultCondition = "Clear"

	fallbackMaxTemp = 25.0
	fallbackMinTemp = 23.0
	// minTempOffset is subtracted from the current temperature for a missing daily minimum.
	minTempOffset = 2.0
)

// Normalize builds a snapshot from the three provider responses. Any of them may be nil
// when its call failed. Normalize has no side effects and does not read the clock; the
// caller stamps AsOf.
func Normalize(current *RawCurrent, daily *RawDaily, hourly *RawHourly) models.ForecastSnapshot {
	snap := models.ForecastSnapshot{
		Current: normalizeCurrent(current),
		Hourly:  []models.HourPoint{},
		Daily:   []models.DayPoint{},
	}

	if daily != nil {
		snap.Daily = make([]models.DayPoint, 0, len(daily.ForecastDays))
		for _, d := range daily.ForecastDays {
			snap.Daily = append(snap.Daily, normalizeDay(d, snap.Current.Temp))
		}
	}
	if hourly != nil {
		snap.Hourly = make([]models.HourPoint, 0, len(hourly.ForecastHours))
		for _, h := range hourly.ForecastHours {
			snap.Hourly = append(snap.Hourly, normalizeHour(h))
		}
	}
	return snap
}

func normalizeCurrent(c *RawCurrent) models.Current {
	if c == nil {
		return models.Current{Condition: DefaultCondition}
	}
	out := models.Current{
		Temp:      degrees(c.Temperature),
		RainProb:  rainProb(c.Precipitation),
		Condition: conditionText(c.WeatherCondition),
	}
	if c.RelativeHumidity != nil {
		out.Humidity = int(math.Round(*c.RelativeHumidity))
	}
	return out
}

func normalizeDay(d RawDay, currentTemp float64) models.DayPoint {
	var day, night DayPart
	if d.DaytimeForecast != nil {
		day = *d.DaytimeForecast
	}
	if d.NighttimeForecast != nil {
		night = *d.NighttimeForecast
	}

	maxT := firstNonZero(day.MaxTemperature, d.HighTemperature, d.Temperature)
	if maxT == 0 {
		if currentTemp > 0 {
			maxT = currentTemp
		} else {
			maxT = fallbackMaxTemp
		}
	}

	minT := firstNonZero(night.MinTemperature, d.LowTemperature)
	if minT == 0 {
		if currentTemp > 0 {
			minT = currentTemp - minTempOffset
		} else {
			minT = fallbackMinTemp
		}
	}

	return models.DayPoint{
		Date:      datePart(d.Interval),
		MaxTemp:   maxT,
		MinTemp:   minT,
		RainProb:  rainProb(day.Precipitation),
		Condition: conditionText(day.WeatherCondition),
	}
}

func normalizeHour(h RawHour) models.HourPoint {
	return models.HourPoint{
		Time:      startTime(h.Interval),
		Temp:      degrees(h.Temperature),
		RainProb:  rainProb(h.Precipitation),
		Condition: conditionText(h.WeatherCondition),
	}
}

// conditionText resolves the string-or-object description to a single string.
func conditionText(c *RawCondition) string {
	if c == nil || c.Description == nil {
		return DefaultCondition
	}
	return c.Description.Text
}

func degrees(d *Degrees) float64 {
	if d == nil || d.Degrees == nil {
		return 0
	}
	return *d.Degrees
}

func firstNonZero(candidates ...*Degrees) float64 {
	for _, c := range candidates {
		if v := degrees(c); v != 0 {
			return v
		}
	}
	return 0
}

// rainProb returns the probability as an integer percentage clamped to [0,100].
func rainProb(p *Precipitation) int {
	if p == nil || p.Probability == nil || p.Probability.Percent == nil {
		return 0
	}
	v := int(math.Round(*p.Probability.Percent))
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func startTime(iv *Interval) time.Time {
	if iv == nil || iv.StartTime == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, iv.StartTime)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func datePart(iv *Interval) string {
	if iv == nil {
		return ""
	}
	date, _, _ := strings.Cut(iv.StartTime, "T")
	return date
}
