package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Raw* types mirror the upstream provider payloads. Every field is optional;
// the provider drops fields freely, especially for distant time points.

// RawCurrent is the currentConditions:lookup response.
type RawCurrent struct {
	Temperature      *Degrees       `json:"temperature"`
	RelativeHumidity *float64       `json:"relativeHumidity"`
	Precipitation    *Precipitation `json:"precipitation"`
	WeatherCondition *RawCondition  `json:"weatherCondition"`
}

// RawDaily is the forecast/days:lookup response.
type RawDaily struct {
	ForecastDays  []RawDay `json:"forecastDays"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// RawHourly is the forecast/hours:lookup response.
type RawHourly struct {
	ForecastHours []RawHour `json:"forecastHours"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// RawDay is one entry of RawDaily.
type RawDay struct {
	Interval          *Interval `json:"interval"`
	DaytimeForecast   *DayPart  `json:"daytimeForecast"`
	NighttimeForecast *DayPart  `json:"nighttimeForecast"`
	HighTemperature   *Degrees  `json:"highTemperature"`
	LowTemperature    *Degrees  `json:"lowTemperature"`
	Temperature       *Degrees  `json:"temperature"`
}

// DayPart is the daytime or nighttime half of a RawDay.
type DayPart struct {
	MaxTemperature   *Degrees       `json:"maxTemperature"`
	MinTemperature   *Degrees       `json:"minTemperature"`
	Precipitation    *Precipitation `json:"precipitation"`
	WeatherCondition *RawCondition  `json:"weatherCondition"`
}

// RawHour is one entry of RawHourly.
type RawHour struct {
	Interval         *Interval      `json:"interval"`
	Temperature      *Degrees       `json:"temperature"`
	Precipitation    *Precipitation `json:"precipitation"`
	WeatherCondition *RawCondition  `json:"weatherCondition"`
}

// Interval is a provider time range.
type Interval struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Degrees is a temperature measurement.
type Degrees struct {
	Degrees *float64 `json:"degrees"`
}

// Precipitation wraps the precipitation probability.
type Precipitation struct {
	Probability *struct {
		Percent *float64 `json:"percent"`
	} `json:"probability"`
}

// RawCondition is the provider weather condition block.
type RawCondition struct {
	Description *ConditionText `json:"description"`
}

// ConditionText is the description field, which the provider sends either as a
// plain string or as an object carrying a "text" attribute.
type ConditionText struct {
	Text string
}

// UnmarshalJSON accepts "Sunny" and {"text": "Sunny", "languageCode": "en"}.
func (c *ConditionText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '{':
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		c.Text = obj.Text
		return nil
	default:
		return fmt.Errorf("condition description: unsupported JSON %s", string(data))
	}
}

// MarshalJSON writes the object form.
func (c ConditionText) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text string `json:"text"`
	}{c.Text})
}
