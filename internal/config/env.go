package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables recognised by the controller.
const (
	EnvConfigPath = "VISIONVOICE_CONFIG"
	EnvLogLevel   = "VISIONVOICE_LOG_LEVEL"
	EnvI2CBus     = "VISIONVOICE_I2C_BUS"
	EnvTTSModel   = "VISIONVOICE_TTS_MODEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored; variables already
// set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Path returns the config path from VISIONVOICE_CONFIG.
// Falls back to the provided default if not set.
func Path(defaultPath string) string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return defaultPath
}

// ApplyEnv overlays environment overrides onto c.
// Malformed numeric values are ignored and the file value is kept.
func (c *Config) ApplyEnv() {
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.System.LogLevel = lvl
	}
	if bus := os.Getenv(EnvI2CBus); bus != "" {
		if n, err := strconv.Atoi(bus); err == nil {
			c.Power.I2CBus = n
		}
	}
	if model := os.Getenv(EnvTTSModel); model != "" {
		c.TTS.ModelPath = model
	}
}
