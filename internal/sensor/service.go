// Package sensor ingests device readings and serves them back for decisions
// and history views.
package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/i474232898/smart-irrigation/internal/weather"
)

// rainSensorThreshold is the rain probability above which a device without a
// rain sensor is assumed to be wet.
const rainSensorThreshold = 50

// WeatherSource is the slice of the weather service used to fill gaps.
type WeatherSource interface {
	Current(ctx context.Context, q weather.Query) weather.Snapshot
}

// Service records and lists readings.
type Service struct {
	repo     Repository
	weather  WeatherSource
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a Service. weather may be nil, in which case readings
// must carry every field.
func NewService(repo Repository, ws WeatherSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		weather:  ws,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

// Record validates in, fills missing values from the current weather at
// location and stores the result.
func (s *Service) Record(ctx context.Context, in Input, location string) (Reading, error) {
	if err := s.validate.Struct(in); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	r := Reading{
		ID:           uuid.NewString(),
		DeviceID:     in.DeviceID,
		SoilMoisture: in.SoilMoisture,
		At:           s.now().UTC(),
	}

	needWeather := in.Temperature == nil || in.Humidity == nil || in.RainSensor == nil
	var snap weather.Snapshot
	if needWeather {
		if s.weather == nil {
			return Reading{}, fmt.Errorf("%w: temperature, humidity and rain_sensor are required", ErrInvalidReading)
		}
		snap = s.weather.Current(ctx, weather.CityQuery(location))
	}

	r.Temperature = valueOr(in.Temperature, snap.Temperature)
	r.Humidity = valueOr(in.Humidity, snap.Humidity)

	switch {
	case in.RainSensor != nil:
		r.RainSensor = *in.RainSensor
	case snap.RainProbability > rainSensorThreshold:
		r.RainSensor = 1
	}

	if err := s.repo.InsertReading(ctx, r); err != nil {
		return Reading{}, fmt.Errorf("insert reading: %w", err)
	}

	s.logger.Debug("sensor reading recorded", "device_id", r.DeviceID, "reading_id", r.ID, "filled_from_weather", needWeather)
	return r, nil
}

// Latest returns the newest readings across deviceIDs.
func (s *Service) Latest(ctx context.Context, deviceIDs []string, limit int) ([]Reading, error) {
	return s.repo.FindReadings(ctx, Filter{DeviceIDs: deviceIDs, Limit: limit})
}

// ForDevice returns the newest readings of a single device.
func (s *Service) ForDevice(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	return s.repo.FindReadings(ctx, Filter{DeviceIDs: []string{deviceID}, Limit: limit})
}

// History returns the readings of deviceID from the last days, oldest first.
func (s *Service) History(ctx context.Context, deviceID string, days int) ([]Reading, error) {
	end := s.now().UTC()
	return s.repo.FindReadings(ctx, Filter{
		DeviceIDs: []string{deviceID},
		Since:     end.AddDate(0, 0, -days),
		Until:     end,
		Ascending: true,
	})
}

func valueOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
