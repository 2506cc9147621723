package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/smart-irrigation/internal/weather"
)

// WeatherAPIBaseURL is the public WeatherAPI.com v1 root.
const WeatherAPIBaseURL = "https://api.weatherapi.com/v1"

// WeatherAPIProvider implements weather.Source for WeatherAPI.com. It is
// used as a secondary live source behind OpenWeatherMap.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewWeatherAPIProvider returns nil when apiKey is empty.
func NewWeatherAPIProvider(client *http.Client, apiKey, baseURL string) *WeatherAPIProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = WeatherAPIBaseURL
	}

	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: newBreaker("weatherapi"),
		now:     time.Now,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) params(q weather.Query) url.Values {
	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for both place names and "lat,lon".
	switch {
	case q.HasCity():
		values.Set("q", strings.TrimSpace(q.City))
	case q.HasCoordinates():
		values.Set("q", fmt.Sprintf("%f,%f", *q.Lat, *q.Lon))
	default:
		values.Set("q", "London")
	}
	return values
}

func (p *WeatherAPIProvider) get(ctx context.Context, path string, values url.Values, out interface{}) error {
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

type waCondition struct {
	Text string `json:"text"`
}

func (p *WeatherAPIProvider) Current(ctx context.Context, q weather.Query) (weather.Snapshot, error) {
	var payload struct {
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
		Current struct {
			TempC      float64     `json:"temp_c"`
			FeelsLikeC float64     `json:"feelslike_c"`
			Humidity   float64     `json:"humidity"`
			PrecipMm   float64     `json:"precip_mm"`
			Cloud      float64     `json:"cloud"`
			Condition  waCondition `json:"condition"`
		} `json:"current"`
	}

	if err := p.get(ctx, "current.json", p.params(q), &payload); err != nil {
		return weather.Snapshot{}, err
	}

	rain := rainFromClouds(payload.Current.Cloud)
	if payload.Current.PrecipMm > 0 {
		rain = precipitationRain
	}

	name := payload.Location.Name
	if name == "" {
		name = q.Key()
	}

	return weather.Snapshot{
		Temperature:     payload.Current.TempC,
		FeelsLike:       payload.Current.FeelsLikeC,
		Humidity:        payload.Current.Humidity,
		RainProbability: rain,
		Description:     payload.Current.Condition.Text,
		Location:        normalizePlaceName(name),
		ObservedAt:      p.now().UTC(),
		Provider:        p.name,
	}, nil
}

// Forecast returns the next hourly points from today's forecast.
func (p *WeatherAPIProvider) Forecast(ctx context.Context, q weather.Query, limit int) ([]weather.ForecastPoint, error) {
	values := p.params(q)
	values.Set("days", "1")

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch    int64       `json:"time_epoch"`
					TempC        float64     `json:"temp_c"`
					ChanceOfRain float64     `json:"chance_of_rain"`
					Condition    waCondition `json:"condition"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := p.get(ctx, "forecast.json", values, &payload); err != nil {
		return nil, err
	}

	now := p.now().Unix()
	points := make([]weather.ForecastPoint, 0, limit)
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			if len(points) >= limit {
				return points, nil
			}
			if h.TimeEpoch <= now {
				continue
			}
			points = append(points, weather.ForecastPoint{
				At:              time.Unix(h.TimeEpoch, 0).UTC(),
				Temperature:     h.TempC,
				RainProbability: h.ChanceOfRain,
				Description:     h.Condition.Text,
			})
		}
	}
	return points, nil
}
