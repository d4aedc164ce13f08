package deck

import (
	"fmt"
	"math"
)

// Kind identifies a labware or carrier type.
type Kind string

const (
	KindTrough        Kind = "trough"
	KindTipRack       Kind = "tip_rack"
	KindPlate         Kind = "plate"
	KindTroughCarrier Kind = "trough_carrier"
	KindPlateCarrier  Kind = "plate_carrier"
	KindTipCarrier    Kind = "tip_carrier"
)

// volumeEpsilon absorbs float drift when comparing tracked volumes.
const volumeEpsilon = 1e-6

// Labware is anything that sits in a carrier slot.
type Labware interface {
	Name() string
	Kind() Kind
}

// Trough is a reagent reservoir holding a single liquid.
type Trough struct {
	name      string
	maxVolume float64
	liquid    string
	volume    float64
}

// NewTrough creates an empty trough.
func NewTrough(name string, maxVolume float64) *Trough {
	return &Trough{name: name, maxVolume: maxVolume}
}

func (t *Trough) Name() string       { return t.name }
func (t *Trough) Kind() Kind         { return KindTrough }
func (t *Trough) MaxVolume() float64 { return t.maxVolume }
func (t *Trough) Liquid() string     { return t.liquid }
func (t *Trough) Volume() float64    { return t.volume }

// SetLiquid replaces the trough contents.
func (t *Trough) SetLiquid(liquid string, volume float64) error {
	if volume < 0 || math.IsNaN(volume) {
		return fmt.Errorf("trough %s: invalid volume %.1fuL", t.name, volume)
	}
	if volume > t.maxVolume+volumeEpsilon {
		return fmt.Errorf("trough %s: %.1fuL exceeds capacity %.1fuL", t.name, volume, t.maxVolume)
	}
	t.liquid = liquid
	t.volume = volume
	return nil
}

// Remove draws volume from the trough.
func (t *Trough) Remove(volume float64) error {
	if volume > t.volume+volumeEpsilon {
		return fmt.Errorf("trough %s: cannot remove %.1fuL, only %.1fuL left", t.name, volume, t.volume)
	}
	t.volume = math.Max(0, t.volume-volume)
	return nil
}

// TipRack is a grid of tip positions.
type TipRack struct {
	name string
	grid
	tips []bool
}

// NewTipRack creates an empty rack; call Fill to load tips.
func NewTipRack(name string, rows, cols int) *TipRack {
	return &TipRack{name: name, grid: grid{rows: rows, cols: cols}, tips: make([]bool, rows*cols)}
}

func (r *TipRack) Name() string { return r.name }
func (r *TipRack) Kind() Kind   { return KindTipRack }
func (r *TipRack) Rows() int    { return r.rows }
func (r *TipRack) Columns() int { return r.cols }

// Fill puts a tip in every position.
func (r *TipRack) Fill() {
	for i := range r.tips {
		r.tips[i] = true
	}
}

// TipCount returns the number of tips in the rack.
func (r *TipRack) TipCount() int {
	n := 0
	for _, has := range r.tips {
		if has {
			n++
		}
	}
	return n
}

// HasTip reports whether a position holds a tip.
func (r *TipRack) HasTip(pos string) (bool, error) {
	i, err := r.index(pos)
	if err != nil {
		return false, err
	}
	return r.tips[i], nil
}

// Take removes the tips at positions. Nothing is taken unless every position has a tip.
func (r *TipRack) Take(positions []string) error {
	idx, err := r.indices(positions, true)
	if err != nil {
		return err
	}
	for _, i := range idx {
		r.tips[i] = false
	}
	return nil
}

// Return puts tips back at positions. Every position must be empty.
func (r *TipRack) Return(positions []string) error {
	idx, err := r.indices(positions, false)
	if err != nil {
		return err
	}
	for _, i := range idx {
		r.tips[i] = true
	}
	return nil
}

func (r *TipRack) indices(positions []string, wantTip bool) ([]int, error) {
	idx := make([]int, len(positions))
	for n, pos := range positions {
		i, err := r.index(pos)
		if err != nil {
			return nil, fmt.Errorf("tip rack %s: %w", r.name, err)
		}
		if r.tips[i] != wantTip {
			if wantTip {
				return nil, fmt.Errorf("tip rack %s: no tip at %s", r.name, pos)
			}
			return nil, fmt.Errorf("tip rack %s: position %s already holds a tip", r.name, pos)
		}
		idx[n] = i
	}
	return idx, nil
}

// Plate is a well plate with per-well volume tracking.
type Plate struct {
	name string
	grid
	wellMaxVolume float64
	volumes       []float64
	liquids       []string
}

// NewPlate creates an empty plate.
func NewPlate(name string, rows, cols int, wellMaxVolume float64) *Plate {
	return &Plate{
		name:          name,
		grid:          grid{rows: rows, cols: cols},
		wellMaxVolume: wellMaxVolume,
		volumes:       make([]float64, rows*cols),
		liquids:       make([]string, rows*cols),
	}
}

func (p *Plate) Name() string           { return p.name }
func (p *Plate) Kind() Kind             { return KindPlate }
func (p *Plate) Rows() int              { return p.rows }
func (p *Plate) Columns() int           { return p.cols }
func (p *Plate) WellMaxVolume() float64 { return p.wellMaxVolume }

// WellVolume returns the volume in a well.
func (p *Plate) WellVolume(well string) (float64, error) {
	i, err := p.index(well)
	if err != nil {
		return 0, err
	}
	return p.volumes[i], nil
}

// WellLiquid returns the liquid most recently added to a well.
func (p *Plate) WellLiquid(well string) (string, error) {
	i, err := p.index(well)
	if err != nil {
		return "", err
	}
	return p.liquids[i], nil
}

// Add dispenses volume of liquid into a well.
func (p *Plate) Add(well, liquid string, volume float64) error {
	i, err := p.index(well)
	if err != nil {
		return fmt.Errorf("plate %s: %w", p.name, err)
	}
	if p.volumes[i]+volume > p.wellMaxVolume+volumeEpsilon {
		return fmt.Errorf("plate %s: well %s would hold %.1fuL, max %.1fuL", p.name, well, p.volumes[i]+volume, p.wellMaxVolume)
	}
	p.volumes[i] += volume
	p.liquids[i] = liquid
	return nil
}

// TotalVolume sums all wells.
func (p *Plate) TotalVolume() float64 {
	var total float64
	for _, v := range p.volumes {
		total += v
	}
	return total
}
