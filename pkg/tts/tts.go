// Package tts announces short phrases through a speech worker.
//
// Every utterance launches a one-shot worker process (Piper behind a small
// script on the device) and waits for it to finish. The Arbiter in front of
// it drops routine phrases while another routine phrase is playing, and lets
// priority phrases through unconditionally.
//
// Example usage:
//
//	synth := tts.NewCommand(
//	    tts.WithModel("models/ru_RU-irina-medium.onnx"),
//	    tts.WithSampleRate(16000),
//	)
//	arb := tts.NewArbiter(synth, 100, nil)
//	arb.Speak(ctx, "Person detected")
package tts

import (
	"context"
	"unicode/utf8"
)

// Synthesizer speaks one utterance to completion.
// Implementations must be safe for concurrent use; priority phrases may
// overlap a routine one.
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string) error

// Say calls f.
func (f SynthesizerFunc) Say(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Truncate shortens text to at most max runes.
// Cutting on rune boundaries keeps Cyrillic phrases valid UTF-8.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
