package liquidhandler

import (
	"context"
	"errors"
	"testing"

	"pipetter/internal/config"
	"pipetter/internal/deck"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, cfg config.HandlerConfig) (*Handler, *deck.Layout) {
	t.Helper()
	dc := config.DefaultDeckConfig()
	layout, err := deck.Build(dc, []string{"Compound A", "Compound B"})
	require.NoError(t, err)
	require.NoError(t, layout.Troughs["Compound A"].SetLiquid("Compound A", 1000))

	if cfg.Channels == 0 {
		cfg.Channels = 8
	}
	h, err := NewFromConfig(cfg, layout.Deck)
	require.NoError(t, err)
	require.NoError(t, h.Setup(context.Background()))
	return h, layout
}

func TestHandler_FullCycle(t *testing.T) {
	ctx := context.Background()
	h, layout := newTestHandler(t, config.HandlerConfig{})
	rack := layout.TipRacks[0]
	trough := layout.Troughs["Compound A"]
	positions := []string{"A1", "B1"}

	require.NoError(t, h.PickUpTips(ctx, "tips_01", positions))
	assert.True(t, h.HasTips())
	assert.Equal(t, 94, rack.TipCount())
	assert.Equal(t, "0=tips_01:A1 1=tips_01:B1", h.HeldTips())

	src := []string{trough.Name(), trough.Name()}
	require.NoError(t, h.Aspirate(ctx, src, []float64{100, 50}))
	assert.InDelta(t, 850.0, trough.Volume(), 1e-9)

	require.NoError(t, h.Dispense(ctx, "assay_plate", []string{"A1", "B1"}, []float64{100, 50}))
	v, err := layout.Plate.WellVolume("B1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
	liquid, _ := layout.Plate.WellLiquid("A1")
	assert.Equal(t, "Compound A", liquid)

	require.NoError(t, h.DropTips(ctx, "tips_01", positions))
	assert.False(t, h.HasTips())
	assert.Equal(t, 96, rack.TipCount())

	hist := h.backend.(*ChatterboxBackend).History()
	require.Len(t, hist, 4)
	assert.Equal(t, OpPickUpTips, hist[0].Op)
	assert.Equal(t, OpDropTips, hist[3].Op)
	assert.Equal(t, "aspirate channels=[0 1] resources=trough_Compound A volumes=[100 50]", hist[1].String())
}

func TestHandler_StateErrors(t *testing.T) {
	ctx := context.Background()
	h, layout := newTestHandler(t, config.HandlerConfig{Channels: 2})
	trough := layout.Troughs["Compound A"].Name()

	assert.Error(t, h.PickUpTips(ctx, "tips_01", []string{"A1", "B1", "C1"}), "more positions than channels")
	assert.Error(t, h.PickUpTips(ctx, "tips_09", []string{"A1"}), "unknown rack")
	assert.Error(t, h.Aspirate(ctx, []string{trough}, []float64{10}), "no tip")
	assert.Error(t, h.DropTips(ctx, "tips_01", []string{"A1"}), "nothing to drop")

	require.NoError(t, h.PickUpTips(ctx, "tips_01", []string{"A1"}))
	assert.Error(t, h.PickUpTips(ctx, "tips_01", []string{"B1"}), "channel 0 busy")
	assert.Error(t, h.Aspirate(ctx, []string{trough}, []float64{10, 20}), "length mismatch")
	assert.Error(t, h.Aspirate(ctx, []string{layout.Troughs["Compound B"].Name()}, []float64{10}), "empty trough")
	require.NoError(t, h.Aspirate(ctx, []string{trough}, []float64{10}))
	assert.Error(t, h.Dispense(ctx, "assay_plate", []string{"A1"}, []float64{11}), "more than held")
	assert.Error(t, h.DropTips(ctx, "tips_01", []string{"B1"}), "occupied position")
}

func TestHandler_RequiresSetup(t *testing.T) {
	layout, err := deck.Build(config.DefaultDeckConfig(), []string{"Compound A"})
	require.NoError(t, err)
	h := New(layout.Deck, NewChatterboxBackend(), 8)
	assert.ErrorContains(t, h.PickUpTips(context.Background(), "tips_01", []string{"A1"}), "not set up")
}

func TestFaultBackend_FailsConfiguredOccurrence(t *testing.T) {
	ctx := context.Background()
	h, layout := newTestHandler(t, config.HandlerConfig{FailOperation: "aspirate", FailOccurrence: 2})
	trough := layout.Troughs["Compound A"].Name()
	pos := []string{"A1"}

	require.NoError(t, h.PickUpTips(ctx, "tips_01", pos))
	require.NoError(t, h.Aspirate(ctx, []string{trough}, []float64{10}))
	require.NoError(t, h.Dispense(ctx, "assay_plate", []string{"C3"}, []float64{10}))
	require.NoError(t, h.DropTips(ctx, "tips_01", pos))

	require.NoError(t, h.PickUpTips(ctx, "tips_01", pos))
	err := h.Aspirate(ctx, []string{trough}, []float64{10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInjectedFault))

	// state unchanged by the failed command; tips still held and recoverable
	assert.InDelta(t, 990.0, layout.Troughs["Compound A"].Volume(), 1e-9)
	assert.True(t, h.HasTips())
	require.NoError(t, h.DropTips(ctx, "tips_01", pos))
	assert.Equal(t, 96, layout.TipRacks[0].TipCount())
}

func TestNewFromConfig_UnknownBackend(t *testing.T) {
	_, err := NewFromConfig(config.HandlerConfig{Backend: "star-usb", Channels: 8}, deck.New(32))
	assert.Error(t, err)
}

func TestChatterboxBackend_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewChatterboxBackend()
	assert.ErrorIs(t, b.Execute(ctx, Command{Op: OpAspirate}), context.Canceled)
	assert.Empty(t, b.History())
}
