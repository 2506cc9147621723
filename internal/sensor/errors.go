package sensor

import "errors"

// ErrInvalidReading is returned when a submitted reading fails validation.
var ErrInvalidReading = errors.New("invalid sensor reading")
