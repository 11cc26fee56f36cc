package tts

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-visionvoice/internal/log"
)

// Arbiter serializes routine announcements on a best-effort basis.
//
// The speaking flag is a hint, not a lock: a routine phrase arriving while
// another is playing is dropped. Two routine phrases racing on the flag may
// both play; that is acceptable. Priority phrases ignore the flag entirely.
type Arbiter struct {
	synth     Synthesizer
	maxLength int
	logger    *slog.Logger

	speaking atomic.Bool
	dropped  atomic.Uint64
}

// NewArbiter creates an arbiter truncating phrases to maxLength runes.
func NewArbiter(synth Synthesizer, maxLength int, logger *slog.Logger) *Arbiter {
	return &Arbiter{
		synth:     synth,
		maxLength: maxLength,
		logger:    log.Or(logger).With("component", "tts"),
	}
}

// Speak plays text unless a routine phrase is already playing, in which
// case it returns false without invoking the worker. Worker failures are
// logged and never returned.
func (a *Arbiter) Speak(ctx context.Context, text string) bool {
	if a.speaking.Load() {
		n := a.dropped.Add(1)
		a.logger.Debug("dropped announcement", "text", text, "dropped_total", n)
		return false
	}

	a.speaking.Store(true)
	defer a.speaking.Store(false)

	a.say(ctx, text, false)
	return true
}

// SpeakPriority plays text regardless of the speaking flag and never touches
// it. Reserved for critical alerts.
func (a *Arbiter) SpeakPriority(ctx context.Context, text string) {
	a.say(ctx, text, true)
}

// Speaking reports whether a routine phrase is in progress.
func (a *Arbiter) Speaking() bool {
	return a.speaking.Load()
}

// Dropped returns the number of routine phrases dropped so far.
func (a *Arbiter) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Arbiter) say(ctx context.Context, text string, priority bool) {
	text = Truncate(text, a.maxLength)
	id := uuid.NewString()

	a.logger.Info("speaking", "id", id, "text", text, "priority", priority)
	if err := a.synth.Say(ctx, text); err != nil {
		a.logger.Error("speech worker failed", "id", id, "error", err)
	}
}
