package controller

import "errors"

var (
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("controller: already started")

	// ErrDetectionStopped reports that the detection loop ended on its own.
	ErrDetectionStopped = errors.New("controller: detection loop stopped")
)
