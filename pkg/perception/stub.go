package perception

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubResponse is one scripted answer.
type StubResponse struct {
	// Line is decoded exactly like a worker response line.
	Line string

	// Err, when set, is returned instead of decoding Line.
	Err error

	// Delay simulates inference time. A delay longer than the stub's
	// InferenceTimeout yields ErrTimeout.
	Delay time.Duration
}

// Stub implements Detector for testing.
// Responses are consumed in order; once the script is exhausted every call
// returns an empty result.
type Stub struct {
	Threshold        float32
	InferenceTimeout time.Duration

	// ShutdownErr is returned from Shutdown.
	ShutdownErr error

	mu            sync.Mutex
	script        []StubResponse
	detectCalls   int
	shutdownCalls int
	inFlight      int
	maxInFlight   int
	closed        bool

	shutdownOverlap bool
}

// NewStub creates a stub that answers with the given script.
func NewStub(threshold float32, script ...StubResponse) *Stub {
	return &Stub{
		Threshold:        threshold,
		InferenceTimeout: time.Second,
		script:           script,
	}
}

// Respond returns a StubResponse carrying dets.
func Respond(dets ...Detection) StubResponse {
	return StubResponse{Line: EncodeResponse(dets)}
}

// Push appends responses to the script.
func (s *Stub) Push(rs ...StubResponse) {
	s.mu.Lock()
	s.script = append(s.script, rs...)
	s.mu.Unlock()
}

// Detect pops the next scripted response.
func (s *Stub) Detect(ctx context.Context) ([]Detection, error) {
	s.mu.Lock()
	s.detectCalls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	closed := s.closed
	var r StubResponse
	if len(s.script) > 0 {
		r, s.script = s.script[0], s.script[1:]
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if closed {
		return nil, ErrClosed
	}

	if r.Delay > 0 {
		wait := r.Delay
		timedOut := s.InferenceTimeout > 0 && r.Delay > s.InferenceTimeout
		if timedOut {
			wait = s.InferenceTimeout
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
		if timedOut {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, s.InferenceTimeout)
		}
	}

	if r.Err != nil {
		return nil, r.Err
	}
	dets, err := DecodeResponse(r.Line)
	if err != nil {
		return nil, err
	}
	return Filter(dets, s.Threshold), nil
}

// Shutdown marks the stub closed. A call made while Detect is in flight is
// recorded, see ShutdownOverlapped.
func (s *Stub) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls++
	if s.inFlight > 0 {
		s.shutdownOverlap = true
	}
	s.closed = true
	return s.ShutdownErr
}

// DetectCalls returns how many times Detect was invoked.
func (s *Stub) DetectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectCalls
}

// ShutdownCalls returns how many times Shutdown was invoked.
func (s *Stub) ShutdownCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownCalls
}

// MaxConcurrent returns the highest number of overlapping Detect calls seen.
func (s *Stub) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// ShutdownOverlapped reports whether Shutdown ever ran while a Detect call
// was in flight.
func (s *Stub) ShutdownOverlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownOverlap
}

var _ Detector = (*Stub)(nil)
