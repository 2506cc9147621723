package sensor

import (
	"context"
	"time"
)

// Reading is one stored measurement from a field device.
type Reading struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	SoilMoisture float64   `json:"soil_moisture"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	RainSensor   int       `json:"rain_sensor"`
	At           time.Time `json:"timestamp"`
}

// Input is a reading as submitted by a device. Temperature, humidity and the
// rain sensor are optional; missing values are filled from weather.
type Input struct {
	DeviceID     string   `json:"device_id" validate:"required"`
	SoilMoisture float64  `json:"soil_moisture" validate:"gte=0,lte=100"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=-50,lte=60"`
	Humidity     *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	RainSensor   *int     `json:"rain_sensor,omitempty" validate:"omitempty,oneof=0 1"`
}

// Filter selects readings. Zero values disable the corresponding bound.
type Filter struct {
	DeviceIDs []string
	Since     time.Time
	Until     time.Time
	Limit     int
	Ascending bool
}

// Repository persists readings.
type Repository interface {
	InsertReading(ctx context.Context, r Reading) error
	// LatestReading returns nil when the device has no readings.
	LatestReading(ctx context.Context, deviceID string) (*Reading, error)
	FindReadings(ctx context.Context, f Filter) ([]Reading, error)
}
