package models

import "time"

// Location is a registered place the service keeps forecasts for.
// Locations are created and removed outside this service; the core only reads them.
type Location struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Email          string  `json:"email,omitempty"`
	TelegramChatID string  `json:"telegramChatId,omitempty"`
}

// Current holds present conditions at a location.
type Current struct {
	Temp      float64 `json:"temp"`
	Humidity  int     `json:"humidity"`
	RainProb  int     `json:"rain_prob"`
	Condition string  `json:"condition"`
}

// HourPoint is one hour of the hourly forecast.
type HourPoint struct {
	Time      time.Time `json:"time"`
	Temp      float64   `json:"temp"`
	RainProb  int       `json:"rain_prob"`
	Condition string    `json:"condition"`
}

// DayPoint is one day of the daily forecast. Date is formatted YYYY-MM-DD.
type DayPoint struct {
	Date      string  `json:"date"`
	MaxTemp   float64 `json:"max_temp"`
	MinTemp   float64 `json:"min_temp"`
	RainProb  int     `json:"rain_prob"`
	Condition string  `json:"condition"`
}

// ForecastSnapshot is the normalized forecast cached and distributed per location.
// Hourly and Daily keep upstream (ascending) order.
type ForecastSnapshot struct {
	Current Current     `json:"current"`
	Hourly  []HourPoint `json:"hourly"`
	Daily   []DayPoint  `json:"daily"`
	AsOf    time.Time   `json:"as_of"`
	// Missing lists upstream parts ("current", "daily", "hourly") that failed during a partial sync.
	Missing []string `json:"missing,omitempty"`
}

// Today returns the first daily point, if any.
func (s ForecastSnapshot) Today() (DayPoint, bool) {
	if len(s.Daily) == 0 {
		return DayPoint{}, false
	}
	return s.Daily[0], true
}

// Upcoming returns up to n hourly points strictly after now, in order.
// n <= 0 means no limit.
func (s ForecastSnapshot) Upcoming(now time.Time, n int) []HourPoint {
	var out []HourPoint
	for _, h := range s.Hourly {
		if !h.Time.After(now) {
			continue
		}
		out = append(out, h)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// AuditRecord is one append-only forecast-history row.
type AuditRecord struct {
	LocationID int64   `json:"locationId"`
	Date       string  `json:"date"`
	MaxTemp    float64 `json:"maxTemp"`
	RainProb   int     `json:"rainProb"`
	Condition  string  `json:"condition"`
}
