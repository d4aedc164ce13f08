package visualizer

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFill(shapes []shape, c [4]uint8, circle bool) int {
	n := 0
	for _, s := range shapes {
		if s.Circle == circle && s.Fill.R == c[0] && s.Fill.G == c[1] && s.Fill.B == c[2] && s.Fill.A == c[3] {
			n++
		}
	}
	return n
}

func rgba(s string) [4]uint8 {
	c := mustHex(s)
	return [4]uint8{c.R, c.G, c.B, c.A}
}

func TestBuildScene_TipsAndWells(t *testing.T) {
	layout := newTestLayout(t)
	shapes := buildScene(layout.Deck.Snapshot(), 960, 540, newLiquidColors())

	assert.Equal(t, 192, countFill(shapes, rgba("#40CDA1"), true), "two full racks")
	assert.Equal(t, 96, countFill(shapes, rgba("#F5FAFC"), true), "empty plate wells")

	rack := layout.TipRacks[0]
	require.NoError(t, rack.Take([]string{"A1", "B1"}))
	shapes = buildScene(layout.Deck.Snapshot(), 960, 540, newLiquidColors())
	assert.Equal(t, 190, countFill(shapes, rgba("#40CDA1"), true))
	assert.Equal(t, 2, countFill(shapes, rgba("#FFFFFF"), true))
}

func TestBuildScene_LiquidColorsAreStable(t *testing.T) {
	layout := newTestLayout(t)
	colors := newLiquidColors()
	require.NoError(t, layout.Troughs["Compound A"].SetLiquid("Compound A", 5000))
	require.NoError(t, layout.Troughs["Compound B"].SetLiquid("Compound B", 5000))

	buildScene(layout.Deck.Snapshot(), 960, 540, colors)
	require.NoError(t, layout.Plate.Add("A1", "Compound B", 20))
	shapes := buildScene(layout.Deck.Snapshot(), 960, 540, colors)

	assert.Equal(t, mustHex("#FF5733"), colors.get("Compound A"))
	assert.Equal(t, mustHex("#33FF57"), colors.get("Compound B"))
	assert.Equal(t, 1, countFill(shapes, rgba("#33FF57"), true), "filled well uses the trough's color")
}

func TestBuildScene_CarrierLabels(t *testing.T) {
	shapes := buildScene(newTestLayout(t).Deck.Snapshot(), 960, 540, newLiquidColors())
	var texts []string
	for _, s := range shapes {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	assert.Contains(t, texts, "trough carrier")
	assert.Contains(t, texts, "assay_plate")
	assert.Contains(t, texts, "tips_02")
}

func TestRasterRenderer_Render(t *testing.T) {
	r := NewRasterRenderer(320, 180)
	data, err := r.Render(context.Background(), Frame{Seq: 1, Label: "initial_state", Deck: newTestLayout(t).Deck.Snapshot()})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 180), img.Bounds())

	cr, cg, cb, _ := img.At(1, 1).RGBA()
	want := mustHex("#F5FAFC")
	assert.Equal(t, []uint32{uint32(want.R), uint32(want.G), uint32(want.B)}, []uint32{cr >> 8, cg >> 8, cb >> 8})
}

func TestRasterRenderer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRasterRenderer(64, 64).Render(ctx, Frame{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFillDisc(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	fillDisc(img, image.Rect(0, 0, 10, 10), mustHex("#40CDA1"))
	assert.Equal(t, mustHex("#40CDA1"), img.RGBAAt(5, 5))
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A, "corners stay empty")
}

func TestBrowserRenderer_PageHTML(t *testing.T) {
	b := NewBrowserRenderer(BrowserOptions{Width: 960, Height: 540})
	html, err := b.pageHTML(Frame{Seq: 3, Label: "aspirate_<Compound A>", Deck: newTestLayout(t).Deck.Snapshot()})
	require.NoError(t, err)

	assert.Contains(t, html, "aspirate_&lt;Compound A&gt;")
	assert.Contains(t, html, "background:#40CDA1")
	assert.Contains(t, html, "tips_01")
}

func TestBrowserRenderer_RenderRequiresStart(t *testing.T) {
	_, err := NewBrowserRenderer(BrowserOptions{}).Render(context.Background(), Frame{})
	assert.Error(t, err)
}

type sessionKey struct{}

func TestSessionContext_SurvivesCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), sessionKey{}, "run-1"))
	session := sessionContext(parent)
	cancel()

	require.Error(t, parent.Err())
	assert.NoError(t, session.Err())
	assert.Equal(t, "run-1", session.Value(sessionKey{}))
}
