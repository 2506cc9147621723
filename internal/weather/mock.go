package weather

import (
	"math"
	"time"
)

// MockProvider is the Provider name stamped on simulated snapshots.
const MockProvider = "mock"

var mockConditions = []string{"Clear Sky", "Cloudy", "Partly Cloudy", "Light Rain"}

// seed sums the code points of key so the same key always yields the same data.
func seed(key string) int {
	var s int
	for _, r := range key {
		s += int(r)
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// MockSnapshot derives simulated current conditions from the query's key.
// Apart from ObservedAt the result depends on q alone.
func MockSnapshot(q Query, now time.Time) Snapshot {
	s := seed(q.Key())

	temp := 15.0 + float64(s%20)
	rain := 0.0
	if s%3 == 0 {
		rain = float64(s % 80)
	}

	return Snapshot{
		Temperature:     round1(temp),
		FeelsLike:       round1(temp + 2),
		Humidity:        round1(40.0 + float64(s%40)),
		RainProbability: round1(rain),
		Description:     mockConditions[s%len(mockConditions)] + " (Mock)",
		Location:        q.Label(),
		ObservedAt:      now.UTC(),
		Provider:        MockProvider,
	}
}

// MockForecast returns MaxForecastPoints simulated points, three hours apart,
// starting three hours after now.
func MockForecast(q Query, now time.Time) []ForecastPoint {
	s := seed(q.Key())
	base := 15.0 + float64(s%20)

	points := make([]ForecastPoint, 0, MaxForecastPoints)
	for i := 0; i < MaxForecastPoints; i++ {
		temp := base - 0.5
		if i%2 == 0 {
			temp = base + float64(i)*0.5
		}
		points = append(points, ForecastPoint{
			At:              now.UTC().Add(time.Duration(3*(i+1)) * time.Hour),
			Temperature:     round1(temp),
			RainProbability: round1(float64((s * i) % 100)),
			Description:     "Partly Cloudy (Mock)",
		})
	}
	return points
}
