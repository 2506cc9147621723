package pump

import "errors"

var (
	// ErrNoSensorData means automatic evaluation was requested for a device
	// that has never reported a reading.
	ErrNoSensorData = errors.New("no sensor data available for this device")

	// ErrRecordFailed means the audit log append failed; the visible status
	// was left unchanged.
	ErrRecordFailed = errors.New("could not record pump action")

	// ErrInvalidAction is returned for pump actions other than on/off.
	ErrInvalidAction = errors.New("invalid pump action")
)
