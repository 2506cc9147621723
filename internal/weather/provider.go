package weather

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by a Source when the upstream rejects its
// credentials.
var ErrUnauthorized = errors.New("weather source rejected credentials")

// Source abstracts a live weather API (e.g. OpenWeatherMap, WeatherAPI).
// Implementations may fail; the Service turns every failure into mock data.
type Source interface {
	Name() string
	Current(ctx context.Context, q Query) (Snapshot, error)
	Forecast(ctx context.Context, q Query, limit int) ([]ForecastPoint, error)
}
