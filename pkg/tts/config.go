package tts

import (
	"log/slog"
	"time"
)

// Config holds speech worker configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Worker invocation. The model, sample rate and text are appended as
	// --model, --sample-rate and --text arguments.
	Command string
	Args    []string

	// Voice configuration
	ModelPath  string
	SampleRate int

	// Timeout bounds one utterance.
	Timeout time.Duration

	// StderrLimit caps the diagnostics kept from a failed run.
	StderrLimit int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the speech worker.
type Option func(*Config)

// WithCommand sets the worker executable and its leading arguments.
func WithCommand(command string, args ...string) Option {
	return func(c *Config) {
		c.Command = command
		c.Args = args
	}
}

// WithModel sets the voice model path.
func WithModel(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithTimeout sets the per-utterance timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Command:     "python3",
		Args:        []string{"scripts/tts_worker.py"},
		ModelPath:   "models/voice.onnx",
		SampleRate:  16000,
		Timeout:     30 * time.Second,
		StderrLimit: 4096,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Command == "" {
		return ErrNoCommand
	}
	if c.ModelPath == "" {
		return ErrNoModel
	}
	return nil
}
