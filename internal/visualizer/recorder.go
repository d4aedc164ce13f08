// Package visualizer records a frame per protocol checkpoint and assembles the frames
// into an animated GIF when the run ends.
package visualizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"pipetter/internal/artifacts"
	"pipetter/internal/deck"
	"pipetter/internal/logging"
	"pipetter/internal/protocol"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var _ protocol.Visualizer = (*Recorder)(nil)

// ErrStopped is returned by a Recorder that has already been stopped.
var ErrStopped = errors.New("visualizer already stopped")

const (
	framePrefix       = "frame_"
	defaultFrameDelay = 200 * time.Millisecond
	maxLabelLen       = 64
)

// Source provides the deck state to draw.
type Source interface {
	Snapshot() deck.Snapshot
}

// Options configures a Recorder.
type Options struct {
	OutputDir  string          // frame PNGs
	GIFPath    string          // animation output; empty skips the GIF
	FrameDelay time.Duration   // per-frame delay in the GIF
	Store      artifacts.Store // optional; receives the GIF
	Prefix     string          // object key prefix in Store
}

// Recorder implements protocol.Visualizer on top of a Renderer.
type Recorder struct {
	mu       sync.Mutex
	source   Source
	renderer Renderer
	opts     Options

	runID     string
	started   bool
	stopped   bool
	frames    []string
	published artifacts.Info
}

// NewRecorder creates a recorder drawing source with r.
func NewRecorder(source Source, r Renderer, opts Options) *Recorder {
	if opts.OutputDir == "" {
		opts.OutputDir = "visualization_frames"
	}
	if opts.FrameDelay <= 0 {
		opts.FrameDelay = defaultFrameDelay
	}
	return &Recorder{source: source, renderer: r, opts: opts}
}

// Setup prepares the frame directory, removing frames left by earlier runs, and
// starts the renderer.
func (r *Recorder) Setup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if r.started {
		return nil
	}

	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(r.opts.OutputDir, framePrefix+"*.png"))
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove stale frame: %w", err)
		}
	}
	if len(stale) > 0 {
		logging.VisualizerDebug("Removed %d stale frames from %s", len(stale), r.opts.OutputDir)
	}

	if err := r.renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	r.runID, _ = protocol.RunIDFromContext(ctx)
	r.started = true
	return nil
}

// CaptureFrame renders the current deck state and writes it as the next frame.
func (r *Recorder) CaptureFrame(ctx context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if !r.started {
		return fmt.Errorf("visualizer not set up")
	}

	seq := len(r.frames) + 1
	data, err := r.renderer.Render(ctx, Frame{Seq: seq, Label: label, Deck: r.source.Snapshot()})
	if err != nil {
		return fmt.Errorf("failed to render frame %s: %w", label, err)
	}
	path := filepath.Join(r.opts.OutputDir, fmt.Sprintf("%s%04d_%s.png", framePrefix, seq, frameName(label)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	r.frames = append(r.frames, path)
	logging.VisualizerDebug("Captured frame %d: %s", seq, label)
	return nil
}

// Stop closes the renderer, encodes the GIF and publishes it. Only the first call
// does any work; later calls return ErrStopped.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	r.stopped = true

	var closeErr error
	if r.started {
		closeErr = r.renderer.Close()
	}
	if len(r.frames) == 0 || r.opts.GIFPath == "" {
		logging.VisualizerDebug("No animation written (%d frames)", len(r.frames))
		return closeErr
	}

	timer := logging.StartTimer(logging.CategoryVisualizer, "gif encode")
	err := r.writeGIF(ctx)
	timer.Stop()
	if err != nil {
		return errors.Join(err, closeErr)
	}
	logging.Visualizer("Wrote %s (%d frames)", r.opts.GIFPath, len(r.frames))

	runID := r.runID
	if runID == "" {
		runID = "unassigned"
	}
	info, err := artifacts.Publish(ctx, r.opts.Store, r.opts.Prefix, runID, r.opts.GIFPath,
		map[string]string{"frames": strconv.Itoa(len(r.frames))})
	if err != nil {
		return errors.Join(err, closeErr)
	}
	r.published = info
	return closeErr
}

func (r *Recorder) writeGIF(ctx context.Context) error {
	images := make([]*image.Paletted, len(r.frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range r.frames {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeFrame(path)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	delay := max(int(r.opts.FrameDelay/(10*time.Millisecond)), 1)
	anim := &gif.GIF{Image: images, Delay: make([]int, len(images))}
	for i := range anim.Delay {
		anim.Delay[i] = delay
	}

	if err := os.MkdirAll(filepath.Dir(r.opts.GIFPath), 0755); err != nil {
		return fmt.Errorf("failed to create gif directory: %w", err)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	if err := os.WriteFile(r.opts.GIFPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write gif: %w", err)
	}
	return nil
}

func decodeFrame(path string) (*image.Paletted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	dst := image.NewPaletted(src.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(dst, src.Bounds(), src, src.Bounds().Min)
	return dst, nil
}

// Frames returns the frame paths written so far.
func (r *Recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// GIFPath returns the animation path.
func (r *Recorder) GIFPath() string { return r.opts.GIFPath }

// Published returns the stored GIF, zero if nothing was published.
func (r *Recorder) Published() artifacts.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}

// frameName makes a checkpoint label safe for a file name.
func frameName(label string) string {
	var b strings.Builder
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxLabelLen {
			break
		}
	}
	if b.Len() == 0 {
		return "frame"
	}
	return b.String()
}
