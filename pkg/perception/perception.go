// Package perception talks to the object-detection worker.
//
// Detection runs in a separate long-lived process so that model crashes,
// memory growth and scheduling jitter cannot stall the controller. The
// boundary is a line protocol: the controller writes "detect" and reads back
// exactly one line holding a JSON array of detections (an empty line means
// nothing was seen); "exit" asks the worker to stop.
//
// Two Detector implementations exist: Worker drives the real process, Stub is
// a scripted in-process stand-in for tests.
package perception

import "context"

// Protocol commands.
const (
	CommandDetect = "detect"
	CommandExit   = "exit"
)

// BoundingBox locates a detection in the frame.
// Units (normalized or pixels) are whatever the worker reports.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one recognized object instance.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float32     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// Detector is the perception capability used by the controller.
//
// Implementations are not safe for concurrent use: Detect must not overlap
// with another Detect or with Shutdown on the same instance.
type Detector interface {
	// Detect performs one request/response cycle and returns detections at or
	// above the configured confidence threshold.
	Detect(ctx context.Context) ([]Detection, error)

	// Shutdown stops the worker. It is bounded by a timeout.
	Shutdown(ctx context.Context) error
}

// Filter returns the detections with confidence >= threshold, preserving order.
func Filter(dets []Detection, threshold float32) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}
