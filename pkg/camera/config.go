package camera

import (
	"fmt"
	"strconv"
)

// TestPatternDevice selects the synthetic source instead of a real camera.
const TestPatternDevice = "testpattern"

// Config holds capture settings for a source.
// Zero Width, Height, or FPS leaves the device at its native setting.
type Config struct {
	// Device is a device index ("0"), a file path, a stream URL, or
	// TestPatternDevice.
	Device string `json:"device"`

	Width  int `json:"width"`  // Frame width in pixels
	Height int `json:"height"` // Frame height in pixels
	FPS    int `json:"fps"`    // Requested capture rate
}

// Capture limits accepted by Validate.
const (
	MaxWidth  = 4096
	MaxHeight = 2160
	MaxFPS    = 120
)

// DefaultConfig opens the first camera at its native settings.
func DefaultConfig() Config {
	return Config{Device: "0"}
}

// DeviceIndex returns the numeric index when Device names one.
func (c Config) DeviceIndex() (int, bool) {
	id, err := strconv.Atoi(c.Device)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// IsTestPattern reports whether the synthetic source is selected.
func (c Config) IsTestPattern() bool {
	return c.Device == TestPatternDevice
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device must not be empty")
	}
	if c.Width != 0 && (c.Width < 160 || c.Width > MaxWidth) {
		errors = append(errors, fmt.Sprintf("width must be 0 (native) or between 160 and %d", MaxWidth))
	}
	if c.Height != 0 && (c.Height < 120 || c.Height > MaxHeight) {
		errors = append(errors, fmt.Sprintf("height must be 0 (native) or between 120 and %d", MaxHeight))
	}
	if (c.Width == 0) != (c.Height == 0) {
		errors = append(errors, "width and height must be set together")
	}
	if c.FPS < 0 || c.FPS > MaxFPS {
		errors = append(errors, fmt.Sprintf("fps must be 0 (native) or between 1 and %d", MaxFPS))
	}

	return errors
}
