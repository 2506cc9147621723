package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/sensor"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS pump_logs (
	id            TEXT PRIMARY KEY,
	seq           BIGSERIAL,
	device_id     TEXT NOT NULL,
	pump_status   TEXT NOT NULL,
	reason        TEXT NOT NULL,
	ml_prediction JSONB,
	weather_data  JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);
ALTER TABLE pump_logs ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS pump_logs_device_time_idx ON pump_logs (device_id, created_at DESC);

CREATE TABLE IF NOT EXISTS sensor_readings (
	id            TEXT PRIMARY KEY,
	seq           BIGSERIAL,
	device_id     TEXT NOT NULL,
	soil_moisture DOUBLE PRECISION NOT NULL,
	temperature   DOUBLE PRECISION NOT NULL,
	humidity      DOUBLE PRECISION NOT NULL,
	rain_sensor   SMALLINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
ALTER TABLE sensor_readings ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS sensor_readings_device_time_idx ON sensor_readings (device_id, created_at DESC);
`

// OpenPool connects to PostgreSQL and verifies the connection.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Postgres stores pump logs and sensor readings in PostgreSQL.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a Postgres store backed by db (pool or transaction).
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables and indexes if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// InsertLog appends an audit record. Absent decision or weather is stored as NULL.
func (p *Postgres) InsertLog(ctx context.Context, rec pump.LogRecord) error {
	decision, err := jsonOrNil(rec.Decision)
	if err != nil {
		return err
	}
	weather, err := jsonOrNil(rec.Weather)
	if err != nil {
		return err
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO pump_logs
		 (id, device_id, pump_status, reason, ml_prediction, weather_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID,
		rec.DeviceID,
		string(rec.State),
		rec.Reason,
		decision,
		weather,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("insert pump log: %w", err)
	}
	return nil
}

const logColumns = `id, device_id, pump_status, reason, ml_prediction, weather_data, created_at`

// LatestLog returns the newest record for deviceID, or nil.
func (p *Postgres) LatestLog(ctx context.Context, deviceID string) (*pump.LogRecord, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+logColumns+` FROM pump_logs
		 WHERE device_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`,
		deviceID,
	)

	rec, err := scanLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest pump log: %w", err)
	}
	return &rec, nil
}

// FindLogs filters by device set and lower time bound.
func (p *Postgres) FindLogs(ctx context.Context, f pump.LogFilter) ([]pump.LogRecord, error) {
	where, args := timeFilter(f.DeviceIDs, f.Since, time.Time{})
	sql := `SELECT ` + logColumns + ` FROM pump_logs` + where + orderLimit(f.Ascending, f.Limit, &args)

	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query pump logs: %w", err)
	}
	defer rows.Close()

	var out []pump.LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pump log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pump logs: %w", err)
	}
	return out, nil
}

// InsertReading appends a sensor reading.
func (p *Postgres) InsertReading(ctx context.Context, r sensor.Reading) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO sensor_readings
		 (id, device_id, soil_moisture, temperature, humidity, rain_sensor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID,
		r.DeviceID,
		r.SoilMoisture,
		r.Temperature,
		r.Humidity,
		r.RainSensor,
		r.At,
	)
	if err != nil {
		return fmt.Errorf("insert sensor reading: %w", err)
	}
	return nil
}

const readingColumns = `id, device_id, soil_moisture, temperature, humidity, rain_sensor, created_at`

// LatestReading returns the newest reading for deviceID, or nil.
func (p *Postgres) LatestReading(ctx context.Context, deviceID string) (*sensor.Reading, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings
		 WHERE device_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`,
		deviceID,
	)

	var r sensor.Reading
	err := row.Scan(&r.ID, &r.DeviceID, &r.SoilMoisture, &r.Temperature, &r.Humidity, &r.RainSensor, &r.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest sensor reading: %w", err)
	}
	return &r, nil
}

// FindReadings filters by device set and time bounds (inclusive).
func (p *Postgres) FindReadings(ctx context.Context, f sensor.Filter) ([]sensor.Reading, error) {
	where, args := timeFilter(f.DeviceIDs, f.Since, f.Until)
	sql := `SELECT ` + readingColumns + ` FROM sensor_readings` + where + orderLimit(f.Ascending, f.Limit, &args)

	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query sensor readings: %w", err)
	}
	defer rows.Close()

	var out []sensor.Reading
	for rows.Next() {
		var r sensor.Reading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.SoilMoisture, &r.Temperature, &r.Humidity, &r.RainSensor, &r.At); err != nil {
			return nil, fmt.Errorf("scan sensor reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensor readings: %w", err)
	}
	return out, nil
}

func scanLog(row pgx.Row) (pump.LogRecord, error) {
	var (
		rec      pump.LogRecord
		state    string
		decision []byte
		weather  []byte
	)
	if err := row.Scan(&rec.ID, &rec.DeviceID, &state, &rec.Reason, &decision, &weather, &rec.At); err != nil {
		return pump.LogRecord{}, err
	}
	rec.State = pump.State(state)

	if len(decision) > 0 {
		var d prediction.Decision
		if err := json.Unmarshal(decision, &d); err != nil {
			return pump.LogRecord{}, fmt.Errorf("decode ml_prediction: %w", err)
		}
		rec.Decision = &d
	}
	if len(weather) > 0 {
		var w pump.WeatherUsed
		if err := json.Unmarshal(weather, &w); err != nil {
			return pump.LogRecord{}, fmt.Errorf("decode weather_data: %w", err)
		}
		rec.Weather = &w
	}
	return rec, nil
}

// timeFilter builds the WHERE clause shared by log and reading queries.
func timeFilter(deviceIDs []string, since, until time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(deviceIDs) > 0 {
		args = append(args, deviceIDs)
		conds = append(conds, fmt.Sprintf("device_id = ANY($%d)", len(args)))
	}
	if !since.IsZero() {
		args = append(args, since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !until.IsZero() {
		args = append(args, until)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderLimit sorts by time, breaking ties by insertion order.
func orderLimit(ascending bool, limit int, args *[]any) string {
	clause := " ORDER BY created_at DESC, seq DESC"
	if ascending {
		clause = " ORDER BY created_at ASC, seq ASC"
	}
	if limit > 0 {
		*args = append(*args, limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	return clause
}

func jsonOrNil[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb column: %w", err)
	}
	return b, nil
}
