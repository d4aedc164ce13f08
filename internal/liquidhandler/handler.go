// Package liquidhandler simulates a multi-channel pipetting robot on a deck.
// The Handler tracks tips and volumes and forwards every command to a Backend.
package liquidhandler

import (
	"context"
	"fmt"
	"pipetter/internal/config"
	"pipetter/internal/deck"
	"pipetter/internal/logging"
	"pipetter/internal/protocol"
	"strings"
)

var _ protocol.LiquidHandler = (*Handler)(nil)

type channel struct {
	hasTip  bool
	tipFrom string // rack and position the tip came from
	liquid  string
	volume  float64
}

// Handler drives a Backend while tracking tips and liquid on the deck.
type Handler struct {
	deck     *deck.Deck
	backend  Backend
	channels []channel
	ready    bool
}

// New creates a handler with n channels.
func New(d *deck.Deck, backend Backend, n int) *Handler {
	return &Handler{deck: d, backend: backend, channels: make([]channel, n)}
}

// NewFromConfig creates a handler with a chatterbox backend, wrapped for fault
// injection when cfg names a fail operation.
func NewFromConfig(cfg config.HandlerConfig, d *deck.Deck) (*Handler, error) {
	var backend Backend
	switch cfg.Backend {
	case "", "chatterbox":
		backend = NewChatterboxBackend()
	default:
		return nil, fmt.Errorf("unknown liquid handler backend: %s", cfg.Backend)
	}
	if cfg.FailOperation != "" {
		backend = NewFaultBackend(backend, Operation(cfg.FailOperation), cfg.FailOccurrence)
		logging.Get(logging.CategoryBackend).Warn("Fault injection armed: %s #%d", cfg.FailOperation, cfg.FailOccurrence)
	}
	return New(d, backend, cfg.Channels), nil
}

// Channels returns the number of channels.
func (h *Handler) Channels() int { return len(h.channels) }

// Setup initializes the backend.
func (h *Handler) Setup(ctx context.Context) error {
	if err := h.backend.Setup(ctx); err != nil {
		return fmt.Errorf("backend setup: %w", err)
	}
	h.ready = true
	logging.BackendDebug("Handler ready with %d channels", len(h.channels))
	return nil
}

// HasTips reports whether any channel holds a tip.
func (h *Handler) HasTips() bool {
	for _, ch := range h.channels {
		if ch.hasTip {
			return true
		}
	}
	return false
}

func (h *Handler) useChannels(n int) ([]int, error) {
	if !h.ready {
		return nil, fmt.Errorf("liquid handler not set up")
	}
	if n == 0 || n > len(h.channels) {
		return nil, fmt.Errorf("%d operations for %d channels", n, len(h.channels))
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx, nil
}

// PickUpTips picks up one tip per position with channels 0..n-1.
func (h *Handler) PickUpTips(ctx context.Context, rack string, positions []string) error {
	chans, err := h.useChannels(len(positions))
	if err != nil {
		return err
	}
	for _, c := range chans {
		if h.channels[c].hasTip {
			return fmt.Errorf("channel %d already has a tip", c)
		}
	}
	r, err := h.deck.TipRack(rack)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		has, err := r.HasTip(pos)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("tip rack %s: no tip at %s", rack, pos)
		}
	}

	if err := h.backend.Execute(ctx, Command{Op: OpPickUpTips, Channels: chans, Resources: []string{rack}, Positions: positions}); err != nil {
		return err
	}
	if err := r.Take(positions); err != nil {
		return err
	}
	for i, c := range chans {
		h.channels[c] = channel{hasTip: true, tipFrom: rack + ":" + positions[i]}
	}
	return nil
}

// Aspirate draws volumes[i] from sources[i] into channel i.
func (h *Handler) Aspirate(ctx context.Context, sources []string, volumes []float64) error {
	if len(sources) != len(volumes) {
		return fmt.Errorf("aspirate: %d sources for %d volumes", len(sources), len(volumes))
	}
	chans, err := h.useChannels(len(sources))
	if err != nil {
		return err
	}

	draw := make(map[string]float64)
	troughs := make(map[string]*deck.Trough)
	for i, c := range chans {
		if !h.channels[c].hasTip {
			return fmt.Errorf("channel %d has no tip", c)
		}
		if h.channels[c].volume > 0 && h.channels[c].liquid != "" {
			return fmt.Errorf("channel %d already holds %.1fuL", c, h.channels[c].volume)
		}
		t, err := h.deck.Trough(sources[i])
		if err != nil {
			return err
		}
		troughs[sources[i]] = t
		draw[sources[i]] += volumes[i]
	}
	for name, v := range draw {
		if v > troughs[name].Volume()+1e-6 {
			return fmt.Errorf("trough %s holds %.1fuL, %.1fuL requested", name, troughs[name].Volume(), v)
		}
	}

	if err := h.backend.Execute(ctx, Command{Op: OpAspirate, Channels: chans, Resources: sources, Volumes: volumes}); err != nil {
		return err
	}
	for name, v := range draw {
		if err := troughs[name].Remove(v); err != nil {
			return err
		}
	}
	for i, c := range chans {
		h.channels[c].liquid = troughs[sources[i]].Liquid()
		h.channels[c].volume = volumes[i]
	}
	return nil
}

// Dispense empties volumes[i] from channel i into wells[i] of plate.
func (h *Handler) Dispense(ctx context.Context, plate string, wells []string, volumes []float64) error {
	if len(wells) != len(volumes) {
		return fmt.Errorf("dispense: %d wells for %d volumes", len(wells), len(volumes))
	}
	chans, err := h.useChannels(len(wells))
	if err != nil {
		return err
	}
	p, err := h.deck.Plate(plate)
	if err != nil {
		return err
	}
	for i, c := range chans {
		ch := h.channels[c]
		if !ch.hasTip {
			return fmt.Errorf("channel %d has no tip", c)
		}
		if volumes[i] > ch.volume+1e-6 {
			return fmt.Errorf("channel %d holds %.1fuL, cannot dispense %.1fuL", c, ch.volume, volumes[i])
		}
		v, err := p.WellVolume(wells[i])
		if err != nil {
			return err
		}
		if v+volumes[i] > p.WellMaxVolume()+1e-6 {
			return fmt.Errorf("well %s would overflow: %.1fuL + %.1fuL > %.1fuL", wells[i], v, volumes[i], p.WellMaxVolume())
		}
	}

	if err := h.backend.Execute(ctx, Command{Op: OpDispense, Channels: chans, Resources: []string{plate}, Positions: wells, Volumes: volumes}); err != nil {
		return err
	}
	for i, c := range chans {
		if err := p.Add(wells[i], h.channels[c].liquid, volumes[i]); err != nil {
			return err
		}
		h.channels[c].volume -= volumes[i]
		if h.channels[c].volume < 1e-6 {
			h.channels[c].volume = 0
		}
	}
	return nil
}

// DropTips returns the tips on channels 0..n-1 to the given rack positions.
func (h *Handler) DropTips(ctx context.Context, rack string, positions []string) error {
	chans, err := h.useChannels(len(positions))
	if err != nil {
		return err
	}
	for _, c := range chans {
		if !h.channels[c].hasTip {
			return fmt.Errorf("channel %d has no tip to drop", c)
		}
	}
	r, err := h.deck.TipRack(rack)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		has, err := r.HasTip(pos)
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("tip rack %s: position %s is occupied", rack, pos)
		}
	}

	if err := h.backend.Execute(ctx, Command{Op: OpDropTips, Channels: chans, Resources: []string{rack}, Positions: positions}); err != nil {
		return err
	}
	if err := r.Return(positions); err != nil {
		return err
	}
	for _, c := range chans {
		if h.channels[c].volume > 0 {
			logging.BackendDebug("Channel %d dropped tip with %.1fuL of %s", c, h.channels[c].volume, h.channels[c].liquid)
		}
		h.channels[c] = channel{}
	}
	return nil
}

// HeldTips describes the tips currently on channels, e.g. "0=tips_01:A1".
func (h *Handler) HeldTips() string {
	var parts []string
	for i, ch := range h.channels {
		if ch.hasTip {
			parts = append(parts, fmt.Sprintf("%d=%s", i, ch.tipFrom))
		}
	}
	return strings.Join(parts, " ")
}
