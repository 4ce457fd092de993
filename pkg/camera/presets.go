package camera

import "sort"

// Preset names for common capture resolutions
const (
	PresetNative = "native"
	PresetVGA    = "vga"
	Preset720p   = "720p"
	Preset1080p  = "1080p"
)

var presets = map[string]Config{
	PresetNative: {},
	PresetVGA:    {Width: 640, Height: 480},
	Preset720p:   {Width: 1280, Height: 720},
	Preset1080p:  {Width: 1920, Height: 1080},
}

// PresetNames returns the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset returns cfg with the named preset's resolution and rate.
// The device is kept. ok is false for an unknown name.
func ApplyPreset(cfg Config, name string) (Config, bool) {
	p, ok := presets[name]
	if !ok {
		return cfg, false
	}
	cfg.Width, cfg.Height, cfg.FPS = p.Width, p.Height, p.FPS
	return cfg, true
}
