package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("MODEL_PATH", filepath.Join(dir, "missing-model.json"))
	t.Setenv("SCALER_PATH", filepath.Join(dir, "missing-scaler.json"))
	t.Setenv("OPENWEATHER_API_KEY", "")
	t.Setenv("WEATHERAPI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.Bytes()
}

func TestPredictCommand(t *testing.T) {
	out := execute(t, "predict", "--soil", "20", "--temperature", "30", "--humidity", "40", "--rain", "10")

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, 1.0, got["predicted_class"])
	assert.Equal(t, "RULE", got["source"])
	assert.Equal(t, true, got["should_irrigate"])
}

func TestWeatherCommandUsesMock(t *testing.T) {
	out := execute(t, "weather", "london")

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "London", got["location"])
	assert.Equal(t, "mock", got["provider"])
}
