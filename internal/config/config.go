// Package config loads camstream settings from the environment.
// With no variables set the server listens on 0.0.0.0:5000 and streams
// the first camera at its native resolution.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/camstream/pkg/camera"
)

// Defaults.
const (
	DefaultAddr            = "0.0.0.0:5000"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config holds all process configuration.
type Config struct {
	// HTTP server
	Addr            string
	ShutdownTimeout time.Duration
	AccessLog       bool

	// Capture
	Camera camera.Config
	Preset string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with defaults
// and validates it.
func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("CAMSTREAM_ADDR", DefaultAddr),
		ShutdownTimeout: getDurationEnv("CAMSTREAM_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		AccessLog:       getBoolEnv("CAMSTREAM_DEBUG", false),
		Camera:          camera.DefaultConfig(),
		Preset:          getEnv("CAMERA_PRESET", camera.PresetNative),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
	}
	cfg.Camera.Device = getEnv("CAMERA_DEVICE", cfg.Camera.Device)

	var ok bool
	if cfg.Camera, ok = camera.ApplyPreset(cfg.Camera, cfg.Preset); !ok {
		return cfg, fmt.Errorf("unknown CAMERA_PRESET %q (valid: %s)",
			cfg.Preset, strings.Join(camera.PresetNames(), ", "))
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Validate checks the configuration. Returns a list of problems, or nil.
func (c *Config) Validate() []string {
	var errors []string
	if c.Addr == "" {
		errors = append(errors, "listen address must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "shutdown timeout must be positive")
	}
	return append(errors, c.Camera.Validate()...)
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
