package visualizer

import (
	"context"
	"errors"
	"image/gif"
	"os"
	"path/filepath"
	"pipetter/internal/artifacts"
	"pipetter/internal/config"
	"pipetter/internal/deck"
	"pipetter/internal/protocol"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCompounds = []string{"Compound A", "Compound B"}

func newTestLayout(t *testing.T) *deck.Layout {
	t.Helper()
	l, err := deck.Build(config.DefaultDeckConfig(), testCompounds)
	require.NoError(t, err)
	return l
}

// failingRenderer fails Render on the configured call.
type failingRenderer struct {
	*RasterRenderer
	failAt int
	calls  int
	closed int
}

func (f *failingRenderer) Render(ctx context.Context, fr Frame) ([]byte, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("renderer crashed")
	}
	return f.RasterRenderer.Render(ctx, fr)
}

func (f *failingRenderer) Close() error {
	f.closed++
	return nil
}

func TestRecorder_FullCycle(t *testing.T) {
	dir := t.TempDir()
	layout := newTestLayout(t)
	store := artifacts.NewMemory()
	rec := NewRecorder(layout.Deck, NewRasterRenderer(320, 180), Options{
		OutputDir:  filepath.Join(dir, "frames"),
		GIFPath:    filepath.Join(dir, "out", "protocol-2026-10-16-090000.gif"),
		FrameDelay: 200 * time.Millisecond,
		Store:      store,
		Prefix:     "runs",
	})

	ctx := protocol.WithRunID(context.Background(), "run-1")
	require.NoError(t, rec.Setup(ctx))
	require.NoError(t, rec.CaptureFrame(ctx, "initial_state"))
	require.NoError(t, layout.Troughs["Compound A"].SetLiquid("Compound A", 1000))
	require.NoError(t, rec.CaptureFrame(ctx, "pick_up_tips_A1,B1"))
	require.NoError(t, rec.CaptureFrame(ctx, "aspirate_Compound A"))
	require.NoError(t, rec.Stop(ctx))

	frames := rec.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "frame_0001_initial_state.png", filepath.Base(frames[0]))
	assert.Equal(t, "frame_0002_pick_up_tips_A1_B1.png", filepath.Base(frames[1]))
	assert.Equal(t, "frame_0003_aspirate_Compound_A.png", filepath.Base(frames[2]))

	f, err := os.Open(rec.GIFPath())
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
	assert.Equal(t, []int{20, 20, 20}, anim.Delay)
	assert.Equal(t, 320, anim.Config.Width)

	info := rec.Published()
	assert.Equal(t, "runs/run-1/protocol-2026-10-16-090000.gif", info.Key)
	assert.Equal(t, "3", info.Metadata["frames"])
	_, err = store.Head(ctx, info.Key)
	assert.NoError(t, err)
}

func TestRecorder_SecondStopReturnsErrStopped(t *testing.T) {
	rec := NewRecorder(newTestLayout(t).Deck, NewRasterRenderer(64, 64), Options{OutputDir: t.TempDir()})
	ctx := context.Background()
	require.NoError(t, rec.Setup(ctx))
	require.NoError(t, rec.Stop(ctx))

	assert.ErrorIs(t, rec.Stop(ctx), ErrStopped)
	assert.ErrorIs(t, rec.CaptureFrame(ctx, "late"), ErrStopped)
	assert.ErrorIs(t, rec.Setup(ctx), ErrStopped)
}

func TestRecorder_StopWithoutFramesWritesNoGIF(t *testing.T) {
	dir := t.TempDir()
	gifPath := filepath.Join(dir, "protocol.gif")
	rec := NewRecorder(newTestLayout(t).Deck, NewRasterRenderer(64, 64), Options{OutputDir: dir, GIFPath: gifPath})

	require.NoError(t, rec.Setup(context.Background()))
	require.NoError(t, rec.Stop(context.Background()))
	_, err := os.Stat(gifPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRecorder_SetupRemovesStaleFrames(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "frame_0001_old.png")
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	rec := NewRecorder(newTestLayout(t).Deck, NewRasterRenderer(64, 64), Options{OutputDir: dir})
	require.NoError(t, rec.Setup(context.Background()))
	defer rec.Stop(context.Background())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestRecorder_CaptureBeforeSetup(t *testing.T) {
	rec := NewRecorder(newTestLayout(t).Deck, NewRasterRenderer(64, 64), Options{OutputDir: t.TempDir()})
	assert.Error(t, rec.CaptureFrame(context.Background(), "initial_state"))
}

func TestRecorder_RenderFailure(t *testing.T) {
	r := &failingRenderer{RasterRenderer: NewRasterRenderer(64, 64), failAt: 2}
	rec := NewRecorder(newTestLayout(t).Deck, r, Options{OutputDir: t.TempDir()})
	ctx := context.Background()
	require.NoError(t, rec.Setup(ctx))
	require.NoError(t, rec.CaptureFrame(ctx, "initial_state"))

	err := rec.CaptureFrame(ctx, "aspirate_Compound A")
	assert.ErrorContains(t, err, "renderer crashed")
	assert.Len(t, rec.Frames(), 1)

	require.NoError(t, rec.Stop(ctx))
	assert.Equal(t, 1, r.closed)
}

func TestRecorder_PublishFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	store := artifacts.NewMemory()
	gifPath := filepath.Join(dir, "protocol.gif")
	ctx := protocol.WithRunID(context.Background(), "run-1")
	_, err := store.Put(ctx, "runs/run-1/protocol.gif", strings.NewReader("taken"), artifacts.PutOptions{})
	require.NoError(t, err)

	rec := NewRecorder(newTestLayout(t).Deck, NewRasterRenderer(64, 64), Options{
		OutputDir: filepath.Join(dir, "frames"), GIFPath: gifPath, Store: store, Prefix: "runs",
	})
	require.NoError(t, rec.Setup(ctx))
	require.NoError(t, rec.CaptureFrame(ctx, "initial_state"))

	err = rec.Stop(ctx)
	assert.ErrorIs(t, err, artifacts.ErrExists)
	_, statErr := os.Stat(gifPath)
	assert.NoError(t, statErr, "gif is still written locally")
}

func TestFrameName(t *testing.T) {
	assert.Equal(t, "drop_tips_A1_B1_C1", frameName("drop_tips_A1,B1,C1"))
	assert.Equal(t, "dispense_Compound_A", frameName("dispense_Compound A"))
	assert.Equal(t, "frame", frameName(""))
	assert.Len(t, frameName(string(make([]byte, 200))), maxLabelLen)
}

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer(config.VisualizerConfig{Renderer: config.RendererRaster})
	require.NoError(t, err)
	assert.IsType(t, &RasterRenderer{}, r)

	r, err = NewRenderer(config.VisualizerConfig{Renderer: config.RendererBrowser, FrameWidth: 800, FrameHeight: 600})
	require.NoError(t, err)
	assert.IsType(t, &BrowserRenderer{}, r)
	assert.NoError(t, r.Close(), "closing an unstarted browser renderer is a no-op")

	_, err = NewRenderer(config.VisualizerConfig{Renderer: "svg"})
	assert.Error(t, err)
}
