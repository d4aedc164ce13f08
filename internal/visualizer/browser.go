package visualizer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"pipetter/internal/logging"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions configures the headless browser renderer.
type BrowserOptions struct {
	Width    int
	Height   int
	Headless bool
	Bin      string // browser binary; rod locates or downloads one when empty
}

// BrowserRenderer lays the deck out as an HTML page and screenshots it in a headless
// browser. Unlike RasterRenderer it draws labware names and the checkpoint label.
type BrowserRenderer struct {
	mu     sync.Mutex
	opts   BrowserOptions
	colors *liquidColors

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewBrowserRenderer creates a renderer; the browser is launched by Start.
func NewBrowserRenderer(opts BrowserOptions) *BrowserRenderer {
	if opts.Width <= 0 {
		opts.Width = defaultFrameWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultFrameHeight
	}
	return &BrowserRenderer{opts: opts, colors: newLiquidColors()}
}

// Start launches the browser and opens the page frames are drawn on. The browser
// outlives ctx; Render scopes each frame to its own context and Close ends it.
func (b *BrowserRenderer) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	l := launcher.New().Headless(b.opts.Headless)
	if b.opts.Bin != "" {
		l = l.Bin(b.opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(sessionContext(ctx))
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryVisualizer).Warn("failed to set viewport: %v", err)
	}

	b.launcher, b.browser, b.page = l, browser, page
	logging.VisualizerDebug("Browser renderer started (%dx%d, headless=%v)", b.opts.Width, b.opts.Height, b.opts.Headless)
	return nil
}

// sessionContext keeps ctx values but drops its cancellation, so a run cancelled
// mid-way can still shut the browser down cleanly.
func sessionContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Render loads the frame's page and returns a PNG screenshot of the viewport.
func (b *BrowserRenderer) Render(ctx context.Context, f Frame) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return nil, fmt.Errorf("browser renderer not started")
	}

	html, err := b.pageHTML(f)
	if err != nil {
		return nil, err
	}
	page := b.page.Context(ctx)
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load frame %d: %w", f.Seq, err)
	}
	img, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot frame %d: %w", f.Seq, err)
	}
	return img, nil
}

// Close shuts the browser down and removes its profile directory.
func (b *BrowserRenderer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	b.launcher, b.browser, b.page = nil, nil, nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

var pageTemplate = template.Must(template.New("deck").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body{margin:0;overflow:hidden;font:10px sans-serif}
.s{position:absolute;box-sizing:border-box;overflow:hidden;white-space:nowrap;color:#fff;padding:1px 3px}
.c{border-radius:50%;padding:0}
#label{position:absolute;left:12px;top:8px;color:#3A3A3A;font-size:14px;z-index:1}
</style></head><body>
{{range .Shapes}}<div class="s{{if .Circle}} c{{end}}" style="{{.Style}}">{{.Text}}</div>
{{end}}<div id="label">{{.Label}}</div>
</body></html>`))

type htmlShape struct {
	Style  template.CSS
	Circle bool
	Text   string
}

func (b *BrowserRenderer) pageHTML(f Frame) (string, error) {
	shapes := buildScene(f.Deck, b.opts.Width, b.opts.Height, b.colors)
	data := struct {
		Label  string
		Shapes []htmlShape
	}{Label: fmt.Sprintf("%d  %s", f.Seq, f.Label)}

	for _, s := range shapes {
		r := s.Rect
		data.Shapes = append(data.Shapes, htmlShape{
			Style: template.CSS(fmt.Sprintf("left:%dpx;top:%dpx;width:%dpx;height:%dpx;background:%s",
				r.Min.X, r.Min.Y, r.Dx(), r.Dy(), cssColor(s.Fill))),
			Circle: s.Circle,
			Text:   s.Text,
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}
