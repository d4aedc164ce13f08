package visualizer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
)

const (
	defaultFrameWidth  = 960
	defaultFrameHeight = 540
)

// RasterRenderer draws the deck with plain image primitives. Labels are not drawn.
type RasterRenderer struct {
	mu     sync.Mutex
	width  int
	height int
	colors *liquidColors
}

// NewRasterRenderer creates a renderer producing w×h frames.
func NewRasterRenderer(w, h int) *RasterRenderer {
	if w <= 0 {
		w = defaultFrameWidth
	}
	if h <= 0 {
		h = defaultFrameHeight
	}
	return &RasterRenderer{width: w, height: h, colors: newLiquidColors()}
}

func (r *RasterRenderer) Start(context.Context) error { return nil }
func (r *RasterRenderer) Close() error                { return nil }

// Render draws f and encodes it as PNG.
func (r *RasterRenderer) Render(ctx context.Context, f Frame) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	shapes := buildScene(f.Deck, r.width, r.height, r.colors)
	r.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for _, s := range shapes {
		if s.Circle {
			fillDisc(img, s.Rect, s.Fill)
		} else {
			draw.Draw(img, s.Rect, image.NewUniform(s.Fill), image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fillDisc fills the disc inscribed in r.
func fillDisc(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	// Work in doubled coordinates so the centre can sit between pixels.
	cx, cy := r.Min.X+r.Max.X, r.Min.Y+r.Max.Y
	rad := min(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dy := 2*y + 1 - cy
		for x := r.Min.X; x < r.Max.X; x++ {
			dx := 2*x + 1 - cx
			if dx*dx+dy*dy <= rad*rad {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
