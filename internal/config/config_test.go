package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "models/irrigation_model.json", cfg.ModelPath)
	assert.Equal(t, "models/scaler.json", cfg.ScalerPath)
	assert.Equal(t, 30.0, cfg.DefaultRainThreshold)
	assert.Equal(t, 5*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, "https://api.openweathermap.org/data/2.5", cfg.OpenWeatherBaseURL)
	assert.Equal(t, 15*time.Minute, cfg.AutoInterval)
	assert.Empty(t, cfg.OpenWeatherAPIKey)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.AutoDevices)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEFAULT_RAIN_THRESHOLD", "45.5")
	t.Setenv("WEATHER_CACHE_TTL", "90s")
	t.Setenv("OPENWEATHER_API_KEY", "abc123")
	t.Setenv("AUTO_INTERVAL", "5m")
	t.Setenv("AUTO_DEVICES", "field-1=Paris, field-2 = São Paulo")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 45.5, cfg.DefaultRainThreshold)
	assert.Equal(t, 90*time.Second, cfg.WeatherCacheTTL)
	assert.Equal(t, "abc123", cfg.OpenWeatherAPIKey)
	assert.Equal(t, 5*time.Minute, cfg.AutoInterval)
	assert.Equal(t, []AutoDevice{
		{ID: "field-1", Location: "Paris"},
		{ID: "field-2", Location: "São Paulo"},
	}, cfg.AutoDevices)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		kind ErrorKind
	}{
		{"unparseable duration", "WEATHER_TIMEOUT", "soon", KindParse},
		{"malformed device list", "AUTO_DEVICES", "field-1", KindParse},
		{"threshold above 100", "DEFAULT_RAIN_THRESHOLD", "120", KindValidation},
		{"unknown log level", "LOG_LEVEL", "verbose", KindValidation},
		{"interval below a minute", "AUTO_INTERVAL", "30s", KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := FromEnv()
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "expected *Error, got %T", err)
			assert.Equal(t, tt.kind, cfgErr.Kind)
		})
	}
}
