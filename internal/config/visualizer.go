package config

import "fmt"

// Renderer names.
const (
	RendererRaster  = "raster"
	RendererBrowser = "browser"
)

// VisualizerConfig configures frame capture and the run animation.
type VisualizerConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Renderer    string `yaml:"renderer" toml:"renderer"`       // raster, browser
	OutputDir   string `yaml:"output_dir" toml:"output_dir"`   // frame PNGs
	GIFDir      string `yaml:"gif_dir" toml:"gif_dir"`         // animation output directory
	GIFPattern  string `yaml:"gif_pattern" toml:"gif_pattern"` // %s is replaced by the run timestamp
	FrameDelay  string `yaml:"frame_delay" toml:"frame_delay"`
	FrameWidth  int    `yaml:"frame_width" toml:"frame_width"`
	FrameHeight int    `yaml:"frame_height" toml:"frame_height"`

	// Browser renderer only
	Headless   bool   `yaml:"headless" toml:"headless"`
	BrowserBin string `yaml:"browser_bin" toml:"browser_bin"` // empty = let rod find or download one
}

func (v VisualizerConfig) validate() error {
	if !v.Enabled {
		return nil
	}
	switch v.Renderer {
	case RendererRaster, RendererBrowser:
	default:
		return fmt.Errorf("invalid visualizer.renderer: %s (valid: %s, %s)", v.Renderer, RendererRaster, RendererBrowser)
	}
	if v.OutputDir == "" {
		return fmt.Errorf("visualizer.output_dir is required when the visualizer is enabled")
	}
	if v.FrameWidth < 64 || v.FrameHeight < 64 {
		return fmt.Errorf("visualizer frame size %dx%d too small (min 64x64)", v.FrameWidth, v.FrameHeight)
	}
	return nil
}
