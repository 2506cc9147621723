package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/smart-irrigation/internal/weather"
)

func fl(v float64) *float64 { return &v }

type recorder struct {
	calls atomic.Int32
	last  atomic.Value // url.Values
}

func newOpenWeatherServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls.Add(1)
		rec.last.Store(r.URL.Query())
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func fastProvider(t *testing.T, baseURL string) *OpenWeatherProvider {
	t.Helper()
	p := NewOpenWeatherProvider(&http.Client{Timeout: 2 * time.Second}, "test-key", baseURL)
	require.NotNil(t, p)
	p.httpCfg.Backoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	return p
}

func TestNewOpenWeatherProviderRequiresRealKey(t *testing.T) {
	assert.Nil(t, NewOpenWeatherProvider(http.DefaultClient, "", ""))
	assert.Nil(t, NewOpenWeatherProvider(http.DefaultClient, "  ", ""))
	assert.Nil(t, NewOpenWeatherProvider(http.DefaultClient, "your-openweathermap-api-key-here", ""))
	assert.NotNil(t, NewOpenWeatherProvider(http.DefaultClient, "abc", ""))
}

func TestOpenWeatherCurrent(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantRain float64
		wantFeel float64
	}{
		{
			name:     "rain block present",
			body:     `{"name":"Paris","main":{"temp":14.2,"feels_like":13,"humidity":81},"rain":{"1h":0.4},"clouds":{"all":90},"weather":[{"description":"light rain"}]}`,
			wantRain: 80,
			wantFeel: 13,
		},
		{
			name:     "clouds only",
			body:     `{"name":"Paris","main":{"temp":14.2,"humidity":81},"clouds":{"all":50},"weather":[{"description":"scattered clouds"}]}`,
			wantRain: 40,
			wantFeel: 14.2,
		},
		{
			name:     "clear",
			body:     `{"name":"Paris","main":{"temp":14.2,"feels_like":15,"humidity":81},"weather":[{"description":"clear sky"}]}`,
			wantRain: 0,
			wantFeel: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newOpenWeatherServer(t, http.StatusOK, tt.body)
			p := fastProvider(t, srv.URL)

			snap, err := p.Current(context.Background(), weather.CityQuery(" Paris "))
			require.NoError(t, err)
			assert.Equal(t, 14.2, snap.Temperature)
			assert.Equal(t, 81.0, snap.Humidity)
			assert.Equal(t, tt.wantFeel, snap.FeelsLike)
			assert.Equal(t, tt.wantRain, snap.RainProbability)
			assert.Equal(t, "Paris", snap.Location)
			assert.Equal(t, "openweathermap", snap.Provider)

			q := rec.last.Load().(url.Values)
			assert.Equal(t, "Paris", q.Get("q"))
			assert.Equal(t, "metric", q.Get("units"))
			assert.Equal(t, "test-key", q.Get("appid"))
		})
	}
}

func TestOpenWeatherRainCappedAtHundred(t *testing.T) {
	assert.Equal(t, 100.0, rainFromClouds(150))
	assert.Equal(t, 80.0, rainFromClouds(100))
}

func TestOpenWeatherQueryParams(t *testing.T) {
	body := `{"name":"X","main":{"temp":1,"humidity":1},"weather":[{"description":"d"}]}`

	t.Run("coordinates", func(t *testing.T) {
		srv, rec := newOpenWeatherServer(t, http.StatusOK, body)
		_, err := fastProvider(t, srv.URL).Current(context.Background(), weather.Query{Lat: fl(12.97), Lon: fl(77.59)})
		require.NoError(t, err)
		q := rec.last.Load().(url.Values)
		assert.Equal(t, "12.97", q.Get("lat"))
		assert.Equal(t, "77.59", q.Get("lon"))
		assert.Empty(t, q.Get("q"))
	})

	t.Run("default", func(t *testing.T) {
		srv, rec := newOpenWeatherServer(t, http.StatusOK, body)
		_, err := fastProvider(t, srv.URL).Current(context.Background(), weather.Query{})
		require.NoError(t, err)
		assert.Equal(t, "London", rec.last.Load().(url.Values).Get("q"))
	})
}

func TestOpenWeatherStripsDiacritics(t *testing.T) {
	srv, _ := newOpenWeatherServer(t, http.StatusOK,
		`{"name":"Tiruvānmiyūr","main":{"temp":30,"humidity":70},"weather":[{"description":"haze"}]}`)

	snap, err := fastProvider(t, srv.URL).Current(context.Background(), weather.CityQuery("tiruvanmiyur"))
	require.NoError(t, err)
	assert.Equal(t, "Tiruvanmiyur", snap.Location)
}

func TestOpenWeatherUnauthorizedIsNotRetried(t *testing.T) {
	srv, rec := newOpenWeatherServer(t, http.StatusUnauthorized, `{"cod":401}`)

	_, err := fastProvider(t, srv.URL).Current(context.Background(), weather.CityQuery("Paris"))
	assert.ErrorIs(t, err, weather.ErrUnauthorized)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestOpenWeatherServerErrorIsRetried(t *testing.T) {
	srv, rec := newOpenWeatherServer(t, http.StatusBadGateway, ``)

	_, err := fastProvider(t, srv.URL).Current(context.Background(), weather.CityQuery("Paris"))
	assert.True(t, errors.Is(err, errServerError))
	assert.Equal(t, int32(3), rec.calls.Load())
}

func TestOpenWeatherMalformedBody(t *testing.T) {
	srv, _ := newOpenWeatherServer(t, http.StatusOK, `{"main":{"temp":1},"weather":[]}`)
	_, err := fastProvider(t, srv.URL).Current(context.Background(), weather.CityQuery("Paris"))
	assert.Error(t, err)
}

func TestOpenWeatherForecast(t *testing.T) {
	body := `{"list":[
		{"dt":1780000000,"main":{"temp":20},"pop":0.25,"weather":[{"description":"few clouds"}]},
		{"dt":1780010800,"main":{"temp":21},"pop":1,"weather":[{"description":"rain"}]},
		{"dt":1780021600,"main":{"temp":22},"pop":0,"weather":[{"description":"clear"}]}
	]}`
	srv, rec := newOpenWeatherServer(t, http.StatusOK, body)

	points, err := fastProvider(t, srv.URL).Forecast(context.Background(), weather.CityQuery("Paris"), 2)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, time.Unix(1780000000, 0).UTC(), points[0].At)
	assert.Equal(t, 25.0, points[0].RainProbability)
	assert.Equal(t, 100.0, points[1].RainProbability)
	assert.Equal(t, "rain", points[1].Description)
	assert.Equal(t, "2", rec.last.Load().(url.Values).Get("cnt"))
}

func TestServiceFallsBackOnUnauthorized(t *testing.T) {
	srv, _ := newOpenWeatherServer(t, http.StatusUnauthorized, `{}`)
	cache := weather.NewCache(time.Minute, nil)
	svc := weather.NewService(cache, []weather.Source{fastProvider(t, srv.URL)})

	snap := svc.Current(context.Background(), weather.CityQuery("Paris"))
	assert.Equal(t, weather.MockProvider, snap.Provider)
	assert.Equal(t, "Light Rain (Mock)", snap.Description)
	assert.Equal(t, 0, cache.Len())
}
