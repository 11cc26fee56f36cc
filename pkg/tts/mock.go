package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Synthesizer for testing.
// Behaviour can be customized via SayFunc.
type Mock struct {
	// SayFunc is called when Say is invoked.
	// If nil, Say returns nil immediately.
	SayFunc func(ctx context.Context, text string) error

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Say invocation for verification.
type MockCall struct {
	Text string
	Time time.Time
}

// NewMock creates a new mock synthesizer that succeeds instantly.
func NewMock() *Mock {
	return &Mock{}
}

// Say records the call and delegates to SayFunc.
func (m *Mock) Say(ctx context.Context, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Time: time.Now()})
	fn := m.SayFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// Texts returns the text of every recorded call in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of Say calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose Say always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SayFunc: func(ctx context.Context, text string) error {
			return err
		},
	}
}

// WithLatency wraps a mock so every Say takes at least delay.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	original := m.SayFunc
	m.SayFunc = func(ctx context.Context, text string) error {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if original != nil {
			return original(ctx, text)
		}
		return nil
	}
	return m
}

// Blocking returns a mock whose Say blocks until release is closed.
// started receives one value per call once the call is in progress.
func Blocking(release <-chan struct{}) (m *Mock, started <-chan string) {
	ch := make(chan string, 16)
	m = &Mock{
		SayFunc: func(ctx context.Context, text string) error {
			ch <- text
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	}
	return m, ch
}

// Verify Mock implements Synthesizer at compile time.
var _ Synthesizer = (*Mock)(nil)
