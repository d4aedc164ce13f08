//go:build integration

package visualizer

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBrowserRenderer_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r := NewBrowserRenderer(BrowserOptions{Width: 640, Height: 360, Headless: true})
	require.NoError(t, r.Start(ctx))
	defer r.Close()

	data, err := r.Render(ctx, Frame{Seq: 1, Label: "initial_state", Deck: newTestLayout(t).Deck.Snapshot()})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 640, 360), img.Bounds())
}

func TestBrowserRenderer_CloseAfterRunCancelled(t *testing.T) {
	runCtx, cancel := context.WithCancel(context.Background())
	r := NewBrowserRenderer(BrowserOptions{Width: 320, Height: 180, Headless: true})
	require.NoError(t, r.Start(runCtx))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_, err := r.Render(stopCtx, Frame{Seq: 1, Label: "after_cancel", Deck: newTestLayout(t).Deck.Snapshot()})
	require.NoError(t, err)
	require.NoError(t, r.Close())
}
