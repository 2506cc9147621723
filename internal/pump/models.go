package pump

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/smart-irrigation/internal/prediction"
)

// State is the physical pump state.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// ParseState accepts on/off in any case.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateOn:
		return StateOn, nil
	case StateOff:
		return StateOff, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Mode records who made the last transition.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Status is the current pump state of a device.
type Status struct {
	DeviceID  string    `json:"device_id"`
	State     State     `json:"status"`
	Mode      Mode      `json:"mode"`
	UpdatedAt time.Time `json:"last_updated"`
}

// WeatherUsed is the subset of a weather snapshot stored with an automatic
// decision.
type WeatherUsed struct {
	Temperature     *float64 `json:"temperature"`
	Humidity        *float64 `json:"humidity"`
	RainProbability float64  `json:"rain_probability"`
	Description     string   `json:"description"`
}

// LogRecord is an append-only audit entry for one pump transition. Manual
// records carry no Decision; automatic records always carry one.
type LogRecord struct {
	ID       string               `json:"id"`
	DeviceID string               `json:"device_id"`
	State    State                `json:"pump_status"`
	Reason   string               `json:"reason"`
	Decision *prediction.Decision `json:"ml_prediction"`
	Weather  *WeatherUsed         `json:"weather_data"`
	At       time.Time            `json:"timestamp"`
}

// Mode infers the transition mode from the record contents.
func (r LogRecord) Mode() Mode {
	if r.Decision != nil {
		return ModeAuto
	}
	return ModeManual
}

// LogFilter selects audit records. Empty DeviceIDs means every device.
type LogFilter struct {
	DeviceIDs []string
	Since     time.Time
	Limit     int
	Ascending bool
}

// LogRepository persists audit records.
type LogRepository interface {
	InsertLog(ctx context.Context, rec LogRecord) error
	// LatestLog returns nil when the device has no records.
	LatestLog(ctx context.Context, deviceID string) (*LogRecord, error)
	FindLogs(ctx context.Context, f LogFilter) ([]LogRecord, error)
}
