package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/smart-irrigation/internal/weather"
)

// OpenWeatherBaseURL is the public OpenWeatherMap 2.5 API root.
const OpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// openWeatherPlaceholderKey ships in sample .env files and is never valid.
const openWeatherPlaceholderKey = "your-openweathermap-api-key-here"

// OpenWeatherProvider implements weather.Source for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherProvider returns nil when apiKey is empty or the sample
// placeholder, meaning no live source is configured.
func NewOpenWeatherProvider(client *http.Client, apiKey, baseURL string) *OpenWeatherProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == openWeatherPlaceholderKey {
		return nil
	}
	if baseURL == "" {
		baseURL = OpenWeatherBaseURL
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// params builds the shared query: city, then coordinates, then London.
func (p *OpenWeatherProvider) params(q weather.Query) url.Values {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")

	switch {
	case q.HasCity():
		values.Set("q", strings.TrimSpace(q.City))
	case q.HasCoordinates():
		values.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(*q.Lon, 'f', -1, 64))
	default:
		values.Set("q", "London")
	}
	return values
}

func (p *OpenWeatherProvider) get(ctx context.Context, path string, values url.Values, out interface{}) error {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s/%s?%s", p.baseURL, path, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

type owCondition struct {
	Description string `json:"description"`
}

func (p *OpenWeatherProvider) Current(ctx context.Context, q weather.Query) (weather.Snapshot, error) {
	var payload struct {
		Name string `json:"name"`
		Main *struct {
			Temp      float64  `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  float64  `json:"humidity"`
		} `json:"main"`
		Rain   *json.RawMessage `json:"rain"`
		Clouds *struct {
			All float64 `json:"all"`
		} `json:"clouds"`
		Weather []owCondition `json:"weather"`
	}

	if err := p.get(ctx, "weather", p.params(q), &payload); err != nil {
		return weather.Snapshot{}, err
	}
	if payload.Main == nil {
		return weather.Snapshot{}, errors.New("openweather response has no main block")
	}
	if len(payload.Weather) == 0 {
		return weather.Snapshot{}, errors.New("openweather response has no conditions")
	}

	var rain float64
	switch {
	case payload.Rain != nil:
		rain = precipitationRain
	case payload.Clouds != nil:
		rain = rainFromClouds(payload.Clouds.All)
	}

	feels := payload.Main.Temp
	if payload.Main.FeelsLike != nil {
		feels = *payload.Main.FeelsLike
	}

	name := payload.Name
	if name == "" {
		name = q.Key()
	}

	return weather.Snapshot{
		Temperature:     payload.Main.Temp,
		FeelsLike:       feels,
		Humidity:        payload.Main.Humidity,
		RainProbability: rain,
		Description:     payload.Weather[0].Description,
		Location:        normalizePlaceName(name),
		ObservedAt:      time.Now().UTC(),
		Provider:        p.name,
	}, nil
}

func (p *OpenWeatherProvider) Forecast(ctx context.Context, q weather.Query, limit int) ([]weather.ForecastPoint, error) {
	values := p.params(q)
	values.Set("cnt", strconv.Itoa(limit))

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
			Pop     float64       `json:"pop"`
			Weather []owCondition `json:"weather"`
		} `json:"list"`
	}

	if err := p.get(ctx, "forecast", values, &payload); err != nil {
		return nil, err
	}

	points := make([]weather.ForecastPoint, 0, limit)
	for _, item := range payload.List {
		if len(points) >= limit {
			break
		}
		if len(item.Weather) == 0 {
			return nil, errors.New("openweather forecast item has no conditions")
		}
		points = append(points, weather.ForecastPoint{
			At:              time.Unix(item.Dt, 0).UTC(),
			Temperature:     item.Main.Temp,
			RainProbability: item.Pop * 100,
			Description:     item.Weather[0].Description,
		})
	}
	return points, nil
}
