package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/smart-irrigation/internal/config"
	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/weather"
	"github.com/i474232898/smart-irrigation/internal/weather/providers"
)

var rootCmd = &cobra.Command{
	Use:          "smart-irrigation",
	Short:        "Irrigation decisions from soil sensors, weather and a trained model",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the auto-evaluation scheduler",
	RunE:  runServe,
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify one set of readings and print the decision",
	RunE:  runPredict,
}

var weatherCmd = &cobra.Command{
	Use:   "weather [city]",
	Short: "Print current weather (or the forecast) for a location",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWeather,
}

var (
	predictFlags struct {
		soil, temperature, humidity, rain float64
		rainSensor                        int
	}
	weatherFlags struct {
		lat, lon float64
		forecast bool
	}
)

func init() {
	f := predictCmd.Flags()
	f.Float64Var(&predictFlags.soil, "soil", 0, "soil moisture (0-100)")
	f.Float64Var(&predictFlags.temperature, "temperature", 25, "air temperature in °C")
	f.Float64Var(&predictFlags.humidity, "humidity", 50, "relative humidity (0-100)")
	f.IntVar(&predictFlags.rainSensor, "rain-sensor", 0, "rain sensor reading (0 or 1)")
	f.Float64Var(&predictFlags.rain, "rain", 0, "rain probability (0-100)")
	_ = predictCmd.MarkFlagRequired("soil")

	w := weatherCmd.Flags()
	w.Float64Var(&weatherFlags.lat, "lat", 0, "latitude")
	w.Float64Var(&weatherFlags.lon, "lon", 0, "longitude")
	w.BoolVar(&weatherFlags.forecast, "forecast", false, "print the short-range forecast")
	weatherCmd.MarkFlagsRequiredTogether("lat", "lon")

	rootCmd.AddCommand(serveCmd, predictCmd, weatherCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.AppConfig, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newWeatherService builds the weather chain. Sources without a key are
// skipped, leaving mock weather when none remain.
func newWeatherService(cfg *config.AppConfig, logger *slog.Logger) *weather.Service {
	client := &http.Client{Timeout: cfg.WeatherTimeout}

	var sources []weather.Source
	if p := providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL); p != nil {
		sources = append(sources, p)
	}
	if p := providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey, cfg.WeatherAPIBaseURL); p != nil {
		sources = append(sources, p)
	}
	if len(sources) == 0 {
		logger.Warn("no weather API key configured; using mock weather")
	}

	return weather.NewService(
		weather.NewCache(cfg.WeatherCacheTTL, nil),
		sources,
		weather.WithTimeout(cfg.WeatherTimeout),
		weather.WithLogger(logger),
	)
}

func runPredict(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	engine := prediction.Load(cfg.ModelPath, cfg.ScalerPath, logger)
	rain := predictFlags.rain
	d := engine.Predict(prediction.FeatureVector{
		SoilMoisture:    predictFlags.soil,
		Temperature:     predictFlags.temperature,
		Humidity:        predictFlags.humidity,
		RainSensor:      predictFlags.rainSensor,
		RainProbability: &rain,
	})
	v := pump.Override(d, rain, predictFlags.rainSensor, cfg.DefaultRainThreshold)

	return printJSON(cmd.OutOrStdout(), struct {
		prediction.Decision
		pump.Verdict
	}{d, v})
}

func runWeather(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var q weather.Query
	if len(args) == 1 {
		q.City = args[0]
	}
	if cmd.Flags().Changed("lat") {
		q.Lat, q.Lon = &weatherFlags.lat, &weatherFlags.lon
	}

	svc := newWeatherService(cfg, logger)
	if weatherFlags.forecast {
		return printJSON(cmd.OutOrStdout(), svc.Forecast(cmd.Context(), q))
	}
	return printJSON(cmd.OutOrStdout(), svc.Current(cmd.Context(), q))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
