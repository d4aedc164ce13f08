package visualizer

import (
	"context"
	"fmt"
	"pipetter/internal/config"
	"pipetter/internal/deck"
)

// Frame is one checkpoint of a run.
type Frame struct {
	Seq   int
	Label string
	Deck  deck.Snapshot
}

// Renderer turns frames into PNG images.
type Renderer interface {
	Start(ctx context.Context) error
	Render(ctx context.Context, f Frame) ([]byte, error)
	Close() error
}

// NewRenderer returns the renderer selected by cfg.Renderer.
func NewRenderer(cfg config.VisualizerConfig) (Renderer, error) {
	switch cfg.Renderer {
	case "", config.RendererRaster:
		return NewRasterRenderer(cfg.FrameWidth, cfg.FrameHeight), nil
	case config.RendererBrowser:
		return NewBrowserRenderer(BrowserOptions{
			Width:    cfg.FrameWidth,
			Height:   cfg.FrameHeight,
			Headless: cfg.Headless,
			Bin:      cfg.BrowserBin,
		}), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Renderer)
	}
}
