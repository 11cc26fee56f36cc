package tts

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoCommand is returned when the worker command is missing.
	ErrNoCommand = errors.New("tts: worker command required")

	// ErrNoModel is returned when the voice model path is missing.
	ErrNoModel = errors.New("tts: model path required")
)

// ExitError reports a speech worker that exited unsuccessfully.
type ExitError struct {
	// Code is the process exit code (-1 if killed by a signal).
	Code int

	// Stderr holds the tail of the worker's diagnostics.
	Stderr string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("tts: worker exited with code %d", e.Code)
	}
	return fmt.Sprintf("tts: worker exited with code %d: %s", e.Code, msg)
}

// LaunchError wraps a failure to start the worker process.
type LaunchError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("tts: launch %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}
