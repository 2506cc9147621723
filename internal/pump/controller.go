// Package pump turns irrigation predictions into pump actions. Every
// transition is written to the audit log before it becomes visible in the
// status cache, so a visible status always has a matching audit record.
package pump

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/sensor"
	"github.com/i474232898/smart-irrigation/internal/weather"
)

// fallbackRainProbability is assumed when no weather dependency is available.
const fallbackRainProbability = 20.0

const (
	defaultLogDays  = 7
	defaultLogLimit = 100
)

// Predictor classifies a feature vector. *prediction.Engine satisfies it.
type Predictor interface {
	Predict(f prediction.FeatureVector) prediction.Decision
}

// WeatherSource supplies current conditions. *weather.Service satisfies it.
type WeatherSource interface {
	Current(ctx context.Context, q weather.Query) weather.Snapshot
}

// ReadingSource yields the latest reading of a device.
type ReadingSource interface {
	// LatestReading returns nil when the device has no readings.
	LatestReading(ctx context.Context, deviceID string) (*sensor.Reading, error)
}

// AutoResult describes one automatic evaluation.
type AutoResult struct {
	Status   Status              `json:"status"`
	Action   State               `json:"action"`
	Decision prediction.Decision `json:"prediction"`
	Verdict  Verdict             `json:"verdict"`
	Weather  WeatherUsed         `json:"weather"`
	Reading  sensor.Reading      `json:"reading"`
}

// LogQuery selects audit records for Logs. Zero Days and Limit take the
// defaults of 7 days and 100 records.
type LogQuery struct {
	DeviceIDs []string
	Days      int
	Limit     int
}

// Controller owns the per-device pump state machine.
type Controller struct {
	logs      LogRepository
	readings  ReadingSource
	predictor Predictor
	weather   WeatherSource
	cache     *StatusCache

	threshold float64
	now       func() time.Time
	logger    *slog.Logger

	// Serializes transitions per device so the cache and the newest audit
	// record cannot disagree.
	locks sync.Map // device id -> *sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithRainThreshold overrides DefaultRainThreshold.
func WithRainThreshold(t float64) Option {
	return func(c *Controller) { c.threshold = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController wires a Controller. ws may be nil, in which case automatic
// evaluation assumes a 20% rain probability. A nil cache gets a fresh one.
func NewController(logs LogRepository, readings ReadingSource, predictor Predictor, ws WeatherSource, cache *StatusCache, opts ...Option) *Controller {
	if cache == nil {
		cache = NewStatusCache()
	}
	c := &Controller{
		logs:      logs,
		readings:  readings,
		predictor: predictor,
		weather:   ws,
		cache:     cache,
		threshold: DefaultRainThreshold,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RainThreshold returns the active override threshold.
func (c *Controller) RainThreshold() float64 {
	return c.threshold
}

// SetManual switches the pump on or off on behalf of actor.
func (c *Controller) SetManual(ctx context.Context, deviceID string, action State, actor string) (Status, error) {
	if action != StateOn && action != StateOff {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	unlock := c.lock(deviceID)
	defer unlock()

	rec := LogRecord{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		State:    action,
		Reason:   "manual control by " + actor,
		At:       c.now().UTC(),
	}

	st, err := c.commit(ctx, rec)
	if err != nil {
		return Status{}, err
	}

	c.logger.Info("pump set manually", "device_id", deviceID, "status", action, "actor", actor)
	return st, nil
}

// EvaluateAuto decides the pump state from the device's latest reading and
// the weather at location, then records the transition. It fails with
// ErrNoSensorData when the device has no readings.
func (c *Controller) EvaluateAuto(ctx context.Context, deviceID, location string) (AutoResult, error) {
	reading, err := c.readings.LatestReading(ctx, deviceID)
	if err != nil {
		return AutoResult{}, fmt.Errorf("load latest reading: %w", err)
	}
	if reading == nil {
		return AutoResult{}, ErrNoSensorData
	}

	used := c.weatherFor(ctx, location)
	rain := used.RainProbability

	decision := c.predictor.Predict(prediction.FeatureVector{
		SoilMoisture:    reading.SoilMoisture,
		Temperature:     reading.Temperature,
		Humidity:        reading.Humidity,
		RainSensor:      reading.RainSensor,
		RainProbability: &rain,
	})
	verdict := Override(decision, rain, reading.RainSensor, c.threshold)
	action := verdict.Action()

	unlock := c.lock(deviceID)
	defer unlock()

	rec := LogRecord{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		State:    action,
		Reason:   verdict.Reason,
		Decision: &decision,
		Weather:  &used,
		At:       c.now().UTC(),
	}

	st, err := c.commit(ctx, rec)
	if err != nil {
		return AutoResult{}, err
	}

	c.logger.Info("pump evaluated automatically",
		"device_id", deviceID,
		"status", action,
		"predicted_class", decision.PredictedClass,
		"source", decision.Source,
		"rain_probability", rain,
		"reason", verdict.Reason,
	)

	return AutoResult{
		Status:   st,
		Action:   action,
		Decision: decision,
		Verdict:  verdict,
		Weather:  used,
		Reading:  *reading,
	}, nil
}

// Status resolves the device status from the cache, then the newest audit
// record, then a default of off/manual.
func (c *Controller) Status(ctx context.Context, deviceID string) (Status, error) {
	if st, ok := c.cache.Get(deviceID); ok {
		return st, nil
	}

	rec, err := c.logs.LatestLog(ctx, deviceID)
	if err != nil {
		return Status{}, fmt.Errorf("load latest pump log: %w", err)
	}
	if rec != nil {
		return Status{
			DeviceID:  deviceID,
			State:     rec.State,
			Mode:      rec.Mode(),
			UpdatedAt: rec.At,
		}, nil
	}

	return Status{
		DeviceID:  deviceID,
		State:     StateOff,
		Mode:      ModeManual,
		UpdatedAt: c.now().UTC(),
	}, nil
}

// Logs returns audit records newest first.
func (c *Controller) Logs(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	days := q.Days
	if days <= 0 {
		days = defaultLogDays
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	return c.logs.FindLogs(ctx, LogFilter{
		DeviceIDs: q.DeviceIDs,
		Since:     c.now().UTC().AddDate(0, 0, -days),
		Limit:     limit,
	})
}

func (c *Controller) weatherFor(ctx context.Context, location string) WeatherUsed {
	if c.weather == nil {
		return WeatherUsed{RainProbability: fallbackRainProbability, Description: "unavailable"}
	}

	snap := c.weather.Current(ctx, weather.CityQuery(location))
	if snap.ObservedAt.IsZero() {
		return WeatherUsed{RainProbability: fallbackRainProbability, Description: "unavailable"}
	}

	temp, hum := snap.Temperature, snap.Humidity
	return WeatherUsed{
		Temperature:     &temp,
		Humidity:        &hum,
		RainProbability: snap.RainProbability,
		Description:     snap.Description,
	}
}

// commit appends rec and only then publishes the matching status. A failed
// append leaves the cache untouched.
func (c *Controller) commit(ctx context.Context, rec LogRecord) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	if err := c.logs.InsertLog(ctx, rec); err != nil {
		c.logger.Error("pump log append failed", "device_id", rec.DeviceID, "status", rec.State, "error", err)
		return Status{}, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	st := Status{
		DeviceID:  rec.DeviceID,
		State:     rec.State,
		Mode:      rec.Mode(),
		UpdatedAt: rec.At,
	}
	c.cache.Set(st)
	return st, nil
}

func (c *Controller) lock(deviceID string) func() {
	v, _ := c.locks.LoadOrStore(deviceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
