package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/smart-irrigation/internal/common"
)

// AppConfig is the process configuration, read from the environment.
type AppConfig struct {
	Port     string `envconfig:"PORT" default:"8080" validate:"required"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Prediction artifacts. Missing files fall back to the rule table.
	ModelPath  string `envconfig:"MODEL_PATH" default:"models/irrigation_model.json"`
	ScalerPath string `envconfig:"SCALER_PATH" default:"models/scaler.json"`

	DefaultRainThreshold float64 `envconfig:"DEFAULT_RAIN_THRESHOLD" default:"30" validate:"gte=0,lte=100"`

	WeatherCacheTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"5m" validate:"gt=0"`
	WeatherTimeout  time.Duration `envconfig:"WEATHER_TIMEOUT" default:"5s" validate:"gt=0"`

	// Live weather sources. Leaving both keys empty runs on mock weather.
	OpenWeatherAPIKey  string `envconfig:"OPENWEATHER_API_KEY"`
	OpenWeatherBaseURL string `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5" validate:"url"`
	WeatherAPIKey      string `envconfig:"WEATHERAPI_API_KEY"`
	WeatherAPIBaseURL  string `envconfig:"WEATHERAPI_BASE_URL" default:"https://api.weatherapi.com/v1" validate:"url"`

	// DatabaseURL selects PostgreSQL; empty keeps everything in memory.
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	StoreMaxAge time.Duration `envconfig:"STORE_MAX_AGE" default:"2160h" validate:"gte=0"`

	AutoInterval   time.Duration `envconfig:"AUTO_INTERVAL" default:"15m" validate:"gte=1m"`
	AutoDevicesRaw string        `envconfig:"AUTO_DEVICES"`

	// AutoDevices is parsed from AutoDevicesRaw.
	AutoDevices []AutoDevice `ignored:"true"`
}

// AutoDevice is one device evaluated by the scheduler.
type AutoDevice struct {
	ID       string
	Location string
}

// ErrorKind classifies configuration failures.
type ErrorKind string

const (
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
)

// Error is returned by Load for any configuration problem.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads configuration from the environment, after loading .env if one
// is present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, &Error{Kind: KindParse, Message: "failed to read environment", Err: err}
	}

	devices, err := parseAutoDevices(cfg.AutoDevicesRaw)
	if err != nil {
		return nil, &Error{Kind: KindParse, Message: "invalid AUTO_DEVICES", Err: err}
	}
	cfg.AutoDevices = devices

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid configuration", Err: err}
	}

	return cfg, nil
}

// parseAutoDevices reads "id=location" pairs separated by commas.
func parseAutoDevices(raw string) ([]AutoDevice, error) {
	var devices []AutoDevice
	for _, item := range common.SplitList(raw) {
		id, location, ok := strings.Cut(item, "=")
		id, location = strings.TrimSpace(id), strings.TrimSpace(location)
		if !ok || id == "" || location == "" {
			return nil, fmt.Errorf("entry %q: want id=location", item)
		}
		devices = append(devices, AutoDevice{ID: id, Location: location})
	}
	return devices, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
