package power

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrBusClosed is returned when the bus has been closed.
	ErrBusClosed = errors.New("power: bus closed")

	// ErrUnsupported is returned on platforms without i2c-dev.
	ErrUnsupported = errors.New("power: i2c not supported on this platform")

	// ErrImplausible is returned for a reading that cannot be real.
	ErrImplausible = errors.New("power: implausible reading")
)

// ReadingError wraps a failed register read.
type ReadingError struct {
	Register uint8
	Err      error
}

func (e *ReadingError) Error() string {
	return fmt.Sprintf("power: read register %#02x: %v", e.Register, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadingError) Unwrap() error {
	return e.Err
}
