package weather

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultKey is used when a query names neither a city nor coordinates.
const defaultKey = "london"

// Query identifies the place a caller wants weather for. City wins over
// coordinates when both are set.
type Query struct {
	City string   `json:"city,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// CityQuery is shorthand for a query by place name.
func CityQuery(city string) Query {
	return Query{City: city}
}

// HasCity reports whether the query carries a non-blank city.
func (q Query) HasCity() bool {
	return strings.TrimSpace(q.City) != ""
}

// HasCoordinates reports whether both latitude and longitude are set.
func (q Query) HasCoordinates() bool {
	return q.Lat != nil && q.Lon != nil
}

// Key returns the normalized cache key for this query.
func (q Query) Key() string {
	switch {
	case q.HasCity():
		return strings.ToLower(strings.TrimSpace(q.City))
	case q.HasCoordinates():
		return formatCoord(*q.Lat) + "," + formatCoord(*q.Lon)
	default:
		return defaultKey
	}
}

// Label is the display name used for simulated data. Letters after an
// apostrophe stay lower case ("o'neil" reads "O'neil").
func (q Query) Label() string {
	if !q.HasCity() {
		return "Unknown Location"
	}
	return cases.Title(language.Und).String(strings.TrimSpace(q.City))
}

// formatCoord keeps one decimal place on whole numbers, so 12 reads "12.0".
func formatCoord(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Snapshot is the normalized current-conditions view for one location.
type Snapshot struct {
	Temperature     float64   `json:"temperature"`
	FeelsLike       float64   `json:"feels_like"`
	Humidity        float64   `json:"humidity"`
	RainProbability float64   `json:"rain_probability"` // 0-100
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	ObservedAt      time.Time `json:"timestamp"` // always UTC
	Provider        string    `json:"provider"`
}

// ForecastPoint is one step of a short-range forecast. Forecasts are ordered
// by At ascending and hold at most MaxForecastPoints entries.
type ForecastPoint struct {
	At              time.Time `json:"time"`
	Temperature     float64   `json:"temperature"`
	RainProbability float64   `json:"rain_probability"`
	Description     string    `json:"description"`
}

// MaxForecastPoints caps every forecast returned by the service.
const MaxForecastPoints = 5
