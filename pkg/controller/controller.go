// Package controller orchestrates the device.
//
// It runs two independent periodic loops: detection polls the perception
// worker and announces what it sees, power polls the battery monitor and
// warns or powers off on low voltage. The perception link and the battery
// monitor are each reachable only through an Exclusive guard, so no two calls
// into either ever overlap. Speech goes through an Announcer that is safe for
// concurrent use on its own.
//
// Lifecycle: Starting → Running → ShuttingDown → Stopped, never backwards.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-visionvoice/internal/config"
	"github.com/teslashibe/go-visionvoice/internal/log"
	"github.com/teslashibe/go-visionvoice/pkg/perception"
	"github.com/teslashibe/go-visionvoice/pkg/power"
)

// State is the controller lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Announcer speaks phrases. Speak may drop a phrase when busy and reports
// whether it was attempted; SpeakPriority is never dropped.
type Announcer interface {
	Speak(ctx context.Context, text string) bool
	SpeakPriority(ctx context.Context, text string)
}

// PowerReader reads one battery status.
type PowerReader interface {
	ReadStatus() (power.Status, error)
}

// Controller owns the perception link and the battery monitor.
type Controller struct {
	cfg     config.Config
	phrases Phrases
	logger  *slog.Logger
	now     func() time.Time

	perception *Exclusive[perception.Detector]
	sensor     *Exclusive[PowerReader]
	speech     Announcer

	hostShutdown func(ctx context.Context) error

	state atomic.Int32

	// Detection loop state, touched only by that goroutine.
	lastBatch time.Time
	cycles    int

	powerDone chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides time.Now for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithHostShutdown sets the action run on critical battery when
// power.auto_shutdown is enabled.
func WithHostShutdown(fn func(ctx context.Context) error) Option {
	return func(c *Controller) {
		c.hostShutdown = fn
	}
}

// WithPhrases replaces the spoken phrase set.
func WithPhrases(p Phrases) Option {
	return func(c *Controller) {
		c.phrases = p
	}
}

// New takes ownership of det and sensor. sensor may be nil when power
// monitoring is disabled.
func New(cfg config.Config, det perception.Detector, sensor PowerReader, speech Announcer, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		phrases:    DefaultPhrases(),
		now:        time.Now,
		perception: NewExclusive(det),
		speech:     speech,
		powerDone:  make(chan struct{}),
	}
	if sensor != nil && cfg.Power.Enabled {
		c.sensor = NewExclusive(sensor)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.Or(c.logger).With("component", "controller")
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Info("state changed", "state", s.String())
}

// PowerDone is closed when the power loop has exited. It never closes when
// power monitoring is disabled.
func (c *Controller) PowerDone() <-chan struct{} {
	return c.powerDone
}

// Run starts both loops and blocks until ctx is cancelled (termination
// signal) or the detection loop ends on its own. The startup greeting is
// spoken from the detection goroutine so a signal is seen at once. It then announces shutdown,
// stops the perception worker and abandons the power loop.
//
// A detection loop failure is returned; a clean signal-driven stop returns
// nil unless the worker failed to exit in time.
func (c *Controller) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	c.logger.Info("state changed", "state", StateRunning.String(), "power_monitoring", c.sensor != nil)

	// Tasks outlive ctx so that shutdown can be sequenced explicitly.
	base := context.WithoutCancel(ctx)
	detCtx, stopDetection := context.WithCancel(base)
	defer stopDetection()
	powerCtx, stopPower := context.WithCancel(base)
	defer stopPower()

	detDone := make(chan error, 1)
	go func() {
		detDone <- c.runDetection(detCtx)
	}()
	if c.sensor != nil {
		go func() {
			defer close(c.powerDone)
			c.powerLoop(powerCtx)
		}()
	}

	var cause error
	select {
	case <-ctx.Done():
		c.logger.Info("termination requested")
	case err := <-detDone:
		if err == nil {
			err = errors.New("exited without error")
		}
		cause = fmt.Errorf("%w: %w", ErrDetectionStopped, err)
		c.logger.Error("detection loop ended", "error", err)
	}

	c.setState(StateShuttingDown)
	stopDetection()

	shutdownCtx, cancel := context.WithTimeout(base, c.shutdownBudget())
	defer cancel()

	c.speech.SpeakPriority(shutdownCtx, c.phrases.ShuttingDown)

	shutdownErr := c.perception.With(func(d perception.Detector) error {
		return d.Shutdown(shutdownCtx)
	})
	if shutdownErr != nil {
		c.logger.Error("perception shutdown failed", "error", shutdownErr)
	}

	stopPower()
	c.setState(StateStopped)
	return errors.Join(cause, shutdownErr)
}

// shutdownBudget bounds the whole teardown: one utterance, one in-flight
// detection releasing the lock, and the worker's exit wait.
func (c *Controller) shutdownBudget() time.Duration {
	return c.cfg.TTS.SpeakTimeout + c.cfg.Camera.InferenceTimeout + c.cfg.Camera.ShutdownTimeout + time.Second
}
