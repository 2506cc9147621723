package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/smart-irrigation/internal/common"
	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/sensor"
	"github.com/i474232898/smart-irrigation/internal/weather"
)

var validate = validator.New()

// Predictor is the prediction surface. *prediction.Engine satisfies it.
type Predictor interface {
	Predict(f prediction.FeatureVector) prediction.Decision
	ModelLoaded() bool
	ModelType() string
}

// WeatherService is the weather surface. *weather.Service satisfies it.
type WeatherService interface {
	Current(ctx context.Context, q weather.Query) weather.Snapshot
	Forecast(ctx context.Context, q weather.Query) []weather.ForecastPoint
}

// SensorService is the reading surface. *sensor.Service satisfies it.
type SensorService interface {
	Record(ctx context.Context, in sensor.Input, location string) (sensor.Reading, error)
	Latest(ctx context.Context, deviceIDs []string, limit int) ([]sensor.Reading, error)
	History(ctx context.Context, deviceID string, days int) ([]sensor.Reading, error)
}

// PumpService is the pump surface. *pump.Controller satisfies it.
type PumpService interface {
	SetManual(ctx context.Context, deviceID string, action pump.State, actor string) (pump.Status, error)
	EvaluateAuto(ctx context.Context, deviceID, location string) (pump.AutoResult, error)
	Status(ctx context.Context, deviceID string) (pump.Status, error)
	Logs(ctx context.Context, q pump.LogQuery) ([]pump.LogRecord, error)
	RainThreshold() float64
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Predictor Predictor
	Weather   WeatherService
	Sensors   SensorService
	Pump      PumpService
	Logger    *slog.Logger
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	h := &handlers{Deps: d}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "smart-irrigation",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Post("/predictions/predict", h.predict)
	v1.Get("/predictions/health", h.predictionHealth)

	v1.Get("/weather/current", h.currentWeather)
	v1.Get("/weather/forecast", h.forecast)

	v1.Post("/sensors/readings", h.recordReading)
	v1.Get("/sensors/readings/latest", h.latestReadings)
	v1.Get("/sensors/readings/device/:id", h.deviceReadings)

	v1.Post("/pump/control", h.pumpControl)
	v1.Post("/pump/auto", h.pumpAuto)
	v1.Get("/pump/status/:id", h.pumpStatus)
	v1.Get("/pump/logs", h.pumpLogs)
}

type handlers struct {
	Deps
}

// --- predictions ---

type predictRequest struct {
	SoilMoisture    *float64 `json:"soil_moisture" validate:"required,gte=0,lte=100"`
	Temperature     *float64 `json:"temperature" validate:"required,gte=-50,lte=60"`
	Humidity        *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	RainSensor      *int     `json:"rain_sensor" validate:"required,oneof=0 1"`
	RainProbability *float64 `json:"rain_probability" validate:"omitempty,gte=0,lte=100"`
}

func (h *handlers) predict(c *fiber.Ctx) error {
	var req predictRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	f := prediction.FeatureVector{
		SoilMoisture:    *req.SoilMoisture,
		Temperature:     *req.Temperature,
		Humidity:        *req.Humidity,
		RainSensor:      *req.RainSensor,
		RainProbability: req.RainProbability,
	}
	d := h.Predictor.Predict(f)

	rain := 0.0
	if req.RainProbability != nil {
		rain = *req.RainProbability
	}
	v := pump.Override(d, rain, f.RainSensor, h.Pump.RainThreshold())

	return c.JSON(fiber.Map{
		"predicted_class":  d.PredictedClass,
		"confidence":       d.Confidence,
		"source":           d.Source,
		"should_irrigate":  v.ShouldIrrigate,
		"recommendation":   v.Recommendation,
		"reason":           v.Reason,
		"rain_probability": rain,
	})
}

func (h *handlers) predictionHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "healthy",
		"models_loaded": h.Predictor.ModelLoaded(),
		"model_type":    h.Predictor.ModelType(),
	})
}

// --- weather ---

func (h *handlers) currentWeather(c *fiber.Ctx) error {
	q, err := parseWeatherQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(h.Weather.Current(c.UserContext(), q))
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	q, err := parseWeatherQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	points := h.Weather.Forecast(c.UserContext(), q)
	return c.JSON(fiber.Map{
		"location": q.Label(),
		"forecast": points,
	})
}

// coordinateQuery holds the optional coordinate parameters.
type coordinateQuery struct {
	Lat *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lon *float64 `validate:"omitempty,gte=-180,lte=180"`
}

func parseWeatherQuery(c *fiber.Ctx) (weather.Query, error) {
	var cq coordinateQuery
	var err error
	if cq.Lat, err = optionalFloat(c, "lat"); err != nil {
		return weather.Query{}, err
	}
	if cq.Lon, err = optionalFloat(c, "lon"); err != nil {
		return weather.Query{}, err
	}
	if (cq.Lat == nil) != (cq.Lon == nil) {
		return weather.Query{}, errors.New("lat and lon must be given together")
	}
	if err := validate.Struct(cq); err != nil {
		return weather.Query{}, err
	}

	return weather.Query{City: c.Query("city"), Lat: cq.Lat, Lon: cq.Lon}, nil
}

// --- sensors ---

type readingRequest struct {
	sensor.Input
	Location string `json:"location"`
}

func (h *handlers) recordReading(c *fiber.Ctx) error {
	var req readingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	r, err := h.Sensors.Record(c.UserContext(), req.Input, req.Location)
	if err != nil {
		return h.mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

type latestQuery struct {
	DeviceIDs []string
	Limit     int `validate:"gte=1,lte=100"`
}

func (h *handlers) latestReadings(c *fiber.Ctx) error {
	q := latestQuery{DeviceIDs: common.SplitList(c.Query("device_ids"))}
	var err error
	if q.Limit, err = intQuery(c, "limit", 10); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	readings, err := h.Sensors.Latest(c.UserContext(), q.DeviceIDs, q.Limit)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{
		"readings": nonNil(readings),
		"count":    len(readings),
	})
}

type historyQuery struct {
	DeviceID string `validate:"required"`
	Days     int    `validate:"gte=1,lte=90"`
}

func (h *handlers) deviceReadings(c *fiber.Ctx) error {
	q := historyQuery{DeviceID: c.Params("id")}
	var err error
	if q.Days, err = intQuery(c, "days", 7); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	readings, err := h.Sensors.History(c.UserContext(), q.DeviceID, q.Days)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{
		"device_id": q.DeviceID,
		"days":      q.Days,
		"readings":  nonNil(readings),
		"count":     len(readings),
	})
}

// --- pump ---

type controlRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Actor    string `json:"actor"`
}

func (h *handlers) pumpControl(c *fiber.Ctx) error {
	var req controlRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	action, err := pump.ParseState(req.Action)
	if err != nil {
		return h.mapError(err)
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	st, err := h.Pump.SetManual(c.UserContext(), req.DeviceID, action, actor)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(st)
}

type autoRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Location string `json:"location"`
}

func (h *handlers) pumpAuto(c *fiber.Ctx) error {
	var req autoRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	res, err := h.Pump.EvaluateAuto(c.UserContext(), req.DeviceID, req.Location)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(res)
}

func (h *handlers) pumpStatus(c *fiber.Ctx) error {
	st, err := h.Pump.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(st)
}

type logsQuery struct {
	DeviceIDs []string
	Days      int `validate:"gte=1,lte=90"`
	Limit     int `validate:"gte=1,lte=1000"`
}

func (h *handlers) pumpLogs(c *fiber.Ctx) error {
	q := logsQuery{DeviceIDs: common.SplitList(c.Query("device_id"))}
	var err error
	if q.Days, err = intQuery(c, "days", 7); err != nil {
		return err
	}
	if q.Limit, err = intQuery(c, "limit", 100); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	logs, err := h.Pump.Logs(c.UserContext(), pump.LogQuery{DeviceIDs: q.DeviceIDs, Days: q.Days, Limit: q.Limit})
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(fiber.Map{
		"logs":  nonNil(logs),
		"count": len(logs),
	})
}

// --- helpers ---

// mapError turns domain errors into HTTP errors.
func (h *handlers) mapError(err error) error {
	switch {
	case errors.Is(err, sensor.ErrInvalidReading), errors.Is(err, pump.ErrInvalidAction):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, pump.ErrNoSensorData):
		return fiber.NewError(fiber.StatusBadRequest, pump.ErrNoSensorData.Error())
	case errors.Is(err, pump.ErrRecordFailed):
		h.Logger.Error("pump action not recorded", "error", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, pump.ErrRecordFailed.Error())
	default:
		h.Logger.Error("request failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
}

func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func intQuery(c *fiber.Ctx, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, key+" must be an integer")
	}
	return n, nil
}

func optionalFloat(c *fiber.Ctx, key string) (*float64, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New(key + " must be a number")
	}
	return &v, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
