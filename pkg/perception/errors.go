package perception

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrTimeout is returned when the worker does not answer in time.
	ErrTimeout = errors.New("perception: inference timeout")

	// ErrWorkerExited is returned when the worker's output has closed.
	ErrWorkerExited = errors.New("perception: worker exited")

	// ErrClosed is returned by Detect after Shutdown.
	ErrClosed = errors.New("perception: link closed")

	// ErrShutdownTimeout is returned when the worker ignores the exit command.
	ErrShutdownTimeout = errors.New("perception: worker did not exit in time")
)

// ParseError reports a response line that is not a detection list.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("perception: parse response %q: %v", line, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// WorkerError is an error object reported by the worker itself.
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return "perception: worker error: " + e.Message
}
