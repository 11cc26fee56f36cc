// Package config loads the immutable device configuration.
//
// The configuration is read once at startup from a YAML file, overlaid with
// environment overrides and validated. After Load returns, the Config value is
// never mutated; each component receives its own copy of the section it needs.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the device controller.
type Config struct {
	System       SystemConfig       `yaml:"system"`
	Camera       CameraConfig       `yaml:"camera"`
	Detection    DetectionConfig    `yaml:"detection"`
	Power        PowerConfig        `yaml:"power"`
	TTS          TTSConfig          `yaml:"tts"`
	Optimization OptimizationConfig `yaml:"optimization"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// CameraConfig configures the perception worker.
type CameraConfig struct {
	// WorkerCommand and WorkerArgs launch the long-lived detection worker.
	WorkerCommand string   `yaml:"worker_command"`
	WorkerArgs    []string `yaml:"worker_args"`

	// DetectionThreshold is the minimum confidence kept from a response (0-1).
	DetectionThreshold float32 `yaml:"detection_threshold"`

	// InferenceTimeout bounds the wait for one response line.
	InferenceTimeout time.Duration `yaml:"inference_timeout"`

	// WarmupDelay is the pause after spawn before the first request.
	WarmupDelay time.Duration `yaml:"warmup_delay"`

	// ShutdownTimeout bounds the wait for the worker to exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DetectionConfig configures the detection loop and its announcements.
type DetectionConfig struct {
	ScanInterval      time.Duration `yaml:"scan_interval"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period"`
	EnabledClasses    []string      `yaml:"enabled_classes"`
	MaxDetections     int           `yaml:"max_detections"`
	AnnouncePerson    bool          `yaml:"announce_person"`
	AnnounceVehicle   bool          `yaml:"announce_vehicle"`
	AnnouncementPause time.Duration `yaml:"announcement_pause"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
}

// PowerConfig configures battery monitoring.
type PowerConfig struct {
	Enabled               bool          `yaml:"enabled"`
	I2CBus                int           `yaml:"i2c_bus"`
	I2CAddress            uint16        `yaml:"i2c_address"`
	ShutdownVoltage       float64       `yaml:"shutdown_voltage"`
	WarningVoltage        float64       `yaml:"warning_voltage"`
	FullVoltage           float64       `yaml:"full_voltage"`
	CheckInterval         time.Duration `yaml:"check_interval"`
	AutoShutdown          bool          `yaml:"auto_shutdown"`
	WarningRepeatInterval time.Duration `yaml:"warning_repeat_interval"`

	// ShutdownGrace is the pause between the critical alert and host shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// ShutdownCommand is run when AutoShutdown is set.
	ShutdownCommand []string `yaml:"shutdown_command"`
}

// TTSConfig configures the one-shot speech worker.
type TTSConfig struct {
	WorkerCommand   string        `yaml:"worker_command"`
	WorkerArgs      []string      `yaml:"worker_args"`
	ModelPath       string        `yaml:"model_path"`
	SampleRate      int           `yaml:"sample_rate"`
	MaxPhraseLength int           `yaml:"max_phrase_length"`
	SpeakTimeout    time.Duration `yaml:"speak_timeout"`
}

// OptimizationConfig holds memory tuning for small boards.
type OptimizationConfig struct {
	// ForceGCInterval releases memory to the OS every N detection cycles.
	// Zero disables it.
	ForceGCInterval int `yaml:"force_gc_interval"`
}

// DefaultConfig returns defaults for a Pi Zero 2W with an IMX500 camera and
// a 2S 18650 UPS HAT.
func DefaultConfig() Config {
	return Config{
		System: SystemConfig{
			Name:     "visionvoice",
			LogLevel: "info",
		},
		Camera: CameraConfig{
			WorkerCommand:      "python3",
			WorkerArgs:         []string{"scripts/camera_worker.py", "--config", DefaultPath},
			DetectionThreshold: 0.5,
			InferenceTimeout:   5 * time.Second,
			WarmupDelay:        3 * time.Second,
			ShutdownTimeout:    10 * time.Second,
		},
		Detection: DetectionConfig{
			ScanInterval:      2 * time.Second,
			CooldownPeriod:    10 * time.Second,
			EnabledClasses:    []string{"person", "car", "dog", "cat", "bicycle"},
			MaxDetections:     3,
			AnnouncePerson:    true,
			AnnounceVehicle:   true,
			AnnouncementPause: 2 * time.Second,
			ErrorBackoff:      5 * time.Second,
		},
		Power: PowerConfig{
			Enabled:               true,
			I2CBus:                1,
			I2CAddress:            0x42,
			ShutdownVoltage:       6.4,
			WarningVoltage:        6.8,
			FullVoltage:           8.4,
			CheckInterval:         30 * time.Second,
			AutoShutdown:          true,
			WarningRepeatInterval: 5 * time.Minute,
			ShutdownGrace:         3 * time.Second,
			ShutdownCommand:       []string{"sudo", "shutdown", "-h", "now"},
		},
		TTS: TTSConfig{
			WorkerCommand:   "python3",
			WorkerArgs:      []string{"scripts/tts_worker.py"},
			ModelPath:       "models/voice.onnx",
			SampleRate:      16000,
			MaxPhraseLength: 100,
			SpeakTimeout:    30 * time.Second,
		},
		Optimization: OptimizationConfig{
			ForceGCInterval: 15,
		},
	}
}

// Load reads, overrides from the environment, and validates the config at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of DefaultConfig.
// Unknown keys are rejected so typos surface at startup.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Camera.WorkerCommand == "" {
		return &ConfigError{Field: "camera.worker_command", Message: "must not be empty"}
	}
	if c.Camera.DetectionThreshold < 0 || c.Camera.DetectionThreshold > 1 {
		return &ConfigError{Field: "camera.detection_threshold", Message: fmt.Sprintf("must be within [0,1], got %v", c.Camera.DetectionThreshold)}
	}
	if err := positive("camera.inference_timeout", c.Camera.InferenceTimeout); err != nil {
		return err
	}
	if err := positive("camera.shutdown_timeout", c.Camera.ShutdownTimeout); err != nil {
		return err
	}
	if c.Camera.WarmupDelay < 0 {
		return &ConfigError{Field: "camera.warmup_delay", Message: "must not be negative"}
	}
	if err := positive("detection.scan_interval", c.Detection.ScanInterval); err != nil {
		return err
	}
	if c.Detection.CooldownPeriod < 0 || c.Detection.AnnouncementPause < 0 || c.Detection.ErrorBackoff < 0 {
		return &ConfigError{Field: "detection", Message: "durations must not be negative"}
	}
	if c.Detection.MaxDetections <= 0 {
		return &ConfigError{Field: "detection.max_detections", Message: fmt.Sprintf("must be positive, got %d", c.Detection.MaxDetections)}
	}
	if c.Power.Enabled {
		p := c.Power
		if !(p.ShutdownVoltage < p.WarningVoltage && p.WarningVoltage < p.FullVoltage) {
			return &ConfigError{Field: "power", Message: fmt.Sprintf("need shutdown_voltage < warning_voltage < full_voltage, got %.2f/%.2f/%.2f", p.ShutdownVoltage, p.WarningVoltage, p.FullVoltage)}
		}
		if err := positive("power.check_interval", p.CheckInterval); err != nil {
			return err
		}
		if p.I2CBus < 0 {
			return &ConfigError{Field: "power.i2c_bus", Message: "must not be negative"}
		}
		if p.I2CAddress == 0 || p.I2CAddress > 0x7f {
			return &ConfigError{Field: "power.i2c_address", Message: fmt.Sprintf("must be a 7-bit address, got %#x", p.I2CAddress)}
		}
		if p.AutoShutdown && len(p.ShutdownCommand) == 0 {
			return &ConfigError{Field: "power.shutdown_command", Message: "required when auto_shutdown is set"}
		}
	}
	if c.TTS.WorkerCommand == "" {
		return &ConfigError{Field: "tts.worker_command", Message: "must not be empty"}
	}
	if c.TTS.MaxPhraseLength <= 0 {
		return &ConfigError{Field: "tts.max_phrase_length", Message: fmt.Sprintf("must be positive, got %d", c.TTS.MaxPhraseLength)}
	}
	if c.TTS.SampleRate <= 0 {
		return &ConfigError{Field: "tts.sample_rate", Message: fmt.Sprintf("must be positive, got %d", c.TTS.SampleRate)}
	}
	if err := positive("tts.speak_timeout", c.TTS.SpeakTimeout); err != nil {
		return err
	}
	return nil
}

func positive(field string, d time.Duration) error {
	if d <= 0 {
		return &ConfigError{Field: field, Message: fmt.Sprintf("must be positive, got %v", d)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}
