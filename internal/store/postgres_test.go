package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/sensor"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row / Rows ---

type mockRow struct {
	values  []any
	scanErr error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(dest, r.values)
}

type mockRows struct {
	data   [][]any
	idx    int
	closed bool
	errVal error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error { return assign(dest, r.data[r.idx]) }

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		if values[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

func execArgs(fn func(args []any) bool) any {
	return mock.MatchedBy(fn)
}

// --- Tests ---

func TestPostgres_Migrate(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "CREATE TABLE IF NOT EXISTS pump_logs") &&
			strings.Contains(sql, "CREATE TABLE IF NOT EXISTS sensor_readings") &&
			strings.Contains(sql, "ALTER TABLE pump_logs ADD COLUMN IF NOT EXISTS seq BIGSERIAL") &&
			strings.Contains(sql, "ALTER TABLE sensor_readings ADD COLUMN IF NOT EXISTS seq BIGSERIAL")
	}), mock.Anything).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, p.Migrate(context.Background()))
	db.AssertExpectations(t)
}

func TestPostgres_InsertLog_ManualStoresNullDecision(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), execArgs(func(args []any) bool {
		decision, _ := args[4].([]byte)
		weather, _ := args[5].([]byte)
		return args[0] == "log-1" && args[2] == "on" && decision == nil && weather == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := p.InsertLog(context.Background(), pump.LogRecord{
		ID:       "log-1",
		DeviceID: "dev-1",
		State:    pump.StateOn,
		Reason:   "manual control by alice",
		At:       time.Now().UTC(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPostgres_InsertLog_AutoEncodesJSONB(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), execArgs(func(args []any) bool {
		decision, _ := args[4].([]byte)
		weather, _ := args[5].([]byte)
		return strings.Contains(string(decision), `"predicted_class":1`) &&
			strings.Contains(string(decision), `"source":"RULE"`) &&
			strings.Contains(string(weather), `"rain_probability":10`)
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := p.InsertLog(context.Background(), pump.LogRecord{
		ID:       "log-2",
		DeviceID: "dev-1",
		State:    pump.StateOn,
		Reason:   pump.ReasonIrrigate,
		Decision: &prediction.Decision{PredictedClass: 1, Confidence: 0.85, Source: prediction.SourceRule},
		Weather:  &pump.WeatherUsed{RainProbability: 10, Description: "clear sky"},
		At:       time.Now().UTC(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPostgres_InsertLog_DBError(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	dbErr := errors.New("connection refused")
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, dbErr)

	err := p.InsertLog(context.Background(), pump.LogRecord{ID: "log-3", DeviceID: "dev-1", State: pump.StateOff})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
}

func TestPostgres_LatestLog_NotFound(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	rec, err := p.LatestLog(context.Background(), "dev-missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgres_LatestLog_DecodesJSONB(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY created_at DESC, seq DESC")
	}), []any{"dev-1"}).
		Return(&mockRow{values: []any{
			"log-9", "dev-1", "off", pump.ReasonRainExpected,
			[]byte(`{"predicted_class":1,"confidence":0.9,"source":"MODEL"}`),
			[]byte(`{"temperature":21.5,"humidity":60,"rain_probability":70,"description":"light rain"}`),
			at,
		}})

	rec, err := p.LatestLog(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, pump.StateOff, rec.State)
	assert.Equal(t, pump.ModeAuto, rec.Mode())
	require.NotNil(t, rec.Decision)
	assert.Equal(t, prediction.SourceModel, rec.Decision.Source)
	require.NotNil(t, rec.Weather)
	assert.Equal(t, 70.0, rec.Weather.RainProbability)
	require.NotNil(t, rec.Weather.Temperature)
	assert.Equal(t, 21.5, *rec.Weather.Temperature)
	assert.Equal(t, at, rec.At)
}

func TestPostgres_FindLogs_BuildsFilters(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"log-2", "dev-1", "on", "manual control by bob", []byte(nil), []byte(nil), since.Add(2 * time.Hour)},
		{"log-1", "dev-2", "off", "manual control by bob", []byte(nil), []byte(nil), since.Add(time.Hour)},
	})

	db.On("Query", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "device_id = ANY($1)") &&
				strings.Contains(sql, "created_at >= $2") &&
				strings.Contains(sql, "ORDER BY created_at DESC, seq DESC") &&
				strings.Contains(sql, "LIMIT $3")
		}),
		[]any{[]string{"dev-1", "dev-2"}, since, 10},
	).Return(rows, nil)

	logs, err := p.FindLogs(context.Background(), pump.LogFilter{
		DeviceIDs: []string{"dev-1", "dev-2"},
		Since:     since,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-2", logs[0].ID)
	assert.Nil(t, logs[0].Decision)
	assert.Equal(t, pump.ModeManual, logs[1].Mode())
	assert.True(t, rows.closed)
	db.AssertExpectations(t)
}

func TestPostgres_FindLogs_QueryError(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("timeout"))

	_, err := p.FindLogs(context.Background(), pump.LogFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query pump logs")
}

func TestPostgres_LatestReading(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "FROM sensor_readings") && strings.Contains(sql, "ORDER BY created_at DESC, seq DESC")
	}), []any{"dev-1"}).
		Return(&mockRow{values: []any{"r-1", "dev-1", 22.0, 24.5, 55.0, 0, at}})

	r, err := p.LatestReading(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 22.0, r.SoilMoisture)
	assert.Equal(t, 24.5, r.Temperature)
	assert.Equal(t, 0, r.RainSensor)
}

func TestPostgres_FindReadings_AscendingWithBounds(t *testing.T) {
	db := new(mockDBTX)
	p := NewPostgres(db)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	rows := newMockRows([][]any{
		{"r-1", "dev-1", 30.0, 20.0, 50.0, 0, since.Add(time.Hour)},
	})

	db.On("Query", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "created_at <= $3") &&
				strings.Contains(sql, "ORDER BY created_at ASC, seq ASC") &&
				!strings.Contains(sql, "LIMIT")
		}),
		[]any{[]string{"dev-1"}, since, until},
	).Return(rows, nil)

	readings, err := p.FindReadings(context.Background(), sensor.Filter{
		DeviceIDs: []string{"dev-1"},
		Since:     since,
		Until:     until,
		Ascending: true,
	})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "r-1", readings[0].ID)
	db.AssertExpectations(t)
}

func TestTimeFilter_NoConditions(t *testing.T) {
	where, args := timeFilter(nil, time.Time{}, time.Time{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
