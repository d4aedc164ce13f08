// Package deck models the robot deck: rails, carriers and the labware they hold,
// with liquid and tip tracking. A Deck is not safe for concurrent use.
package deck

import (
	"fmt"
	"pipetter/internal/logging"
	"sort"
)

// Carrier widths in rails.
const (
	TroughCarrierWidth = 4
	PlateCarrierWidth  = 6
	TipCarrierWidth    = 6
)

// Carrier holds labware in numbered slots and occupies a span of rails.
type Carrier struct {
	name  string
	kind  Kind
	width int
	rail  int
	slots []Labware
	holds Kind
}

func newCarrier(name string, kind, holds Kind, width, slots int) *Carrier {
	return &Carrier{name: name, kind: kind, holds: holds, width: width, slots: make([]Labware, slots)}
}

// NewTroughCarrier creates a carrier for troughs.
func NewTroughCarrier(name string, slots int) *Carrier {
	return newCarrier(name, KindTroughCarrier, KindTrough, TroughCarrierWidth, slots)
}

// NewPlateCarrier creates a carrier for plates.
func NewPlateCarrier(name string, slots int) *Carrier {
	return newCarrier(name, KindPlateCarrier, KindPlate, PlateCarrierWidth, slots)
}

// NewTipCarrier creates a carrier for tip racks.
func NewTipCarrier(name string, slots int) *Carrier {
	return newCarrier(name, KindTipCarrier, KindTipRack, TipCarrierWidth, slots)
}

func (c *Carrier) Name() string { return c.name }
func (c *Carrier) Kind() Kind   { return c.kind }
func (c *Carrier) Rail() int    { return c.rail }
func (c *Carrier) Width() int   { return c.width }

// Slots returns the slot contents; empty slots are nil.
func (c *Carrier) Slots() []Labware {
	out := make([]Labware, len(c.slots))
	copy(out, c.slots)
	return out
}

// Assign places labware in a slot.
func (c *Carrier) Assign(slot int, lw Labware) error {
	if slot < 0 || slot >= len(c.slots) {
		return fmt.Errorf("carrier %s: slot %d out of range 0..%d", c.name, slot, len(c.slots)-1)
	}
	if lw.Kind() != c.holds {
		return fmt.Errorf("carrier %s holds %s, not %s", c.name, c.holds, lw.Kind())
	}
	if c.slots[slot] != nil {
		return fmt.Errorf("carrier %s: slot %d already holds %s", c.name, slot, c.slots[slot].Name())
	}
	c.slots[slot] = lw
	return nil
}

// Deck is a row of rails that carriers are assigned to.
type Deck struct {
	rails    int
	carriers []*Carrier
	labware  map[string]Labware
}

// New creates an empty deck with rails numbered 1..rails.
func New(rails int) *Deck {
	return &Deck{rails: rails, labware: make(map[string]Labware)}
}

// Rails returns the number of rails.
func (d *Deck) Rails() int { return d.rails }

// Carriers returns the assigned carriers ordered by rail.
func (d *Deck) Carriers() []*Carrier {
	out := make([]*Carrier, len(d.carriers))
	copy(out, d.carriers)
	return out
}

// AssignCarrier places a carrier with its left edge on rail. Carriers may not overlap
// and labware names must be unique across the deck.
func (d *Deck) AssignCarrier(c *Carrier, rail int) error {
	if rail < 1 || rail+c.width-1 > d.rails {
		return fmt.Errorf("carrier %s (width %d) does not fit at rail %d of %d", c.name, c.width, rail, d.rails)
	}
	for _, other := range d.carriers {
		if other == c {
			return fmt.Errorf("carrier %s already assigned", c.name)
		}
		if rail < other.rail+other.width && other.rail < rail+c.width {
			return fmt.Errorf("carrier %s at rail %d overlaps %s at rail %d", c.name, rail, other.name, other.rail)
		}
	}
	for _, lw := range c.slots {
		if lw == nil {
			continue
		}
		if _, dup := d.labware[lw.Name()]; dup {
			return fmt.Errorf("labware %s already on deck", lw.Name())
		}
	}

	c.rail = rail
	d.carriers = append(d.carriers, c)
	sort.Slice(d.carriers, func(i, j int) bool { return d.carriers[i].rail < d.carriers[j].rail })
	for _, lw := range c.slots {
		if lw != nil {
			d.labware[lw.Name()] = lw
		}
	}
	logging.DeckDebug("Assigned %s to rail %d", c.name, rail)
	return nil
}

// Trough looks up a trough by name.
func (d *Deck) Trough(name string) (*Trough, error) {
	lw, ok := d.labware[name]
	if t, isTrough := lw.(*Trough); ok && isTrough {
		return t, nil
	}
	return nil, fmt.Errorf("no trough named %q on deck", name)
}

// TipRack looks up a tip rack by name.
func (d *Deck) TipRack(name string) (*TipRack, error) {
	lw, ok := d.labware[name]
	if r, isRack := lw.(*TipRack); ok && isRack {
		return r, nil
	}
	return nil, fmt.Errorf("no tip rack named %q on deck", name)
}

// Plate looks up a plate by name.
func (d *Deck) Plate(name string) (*Plate, error) {
	lw, ok := d.labware[name]
	if p, isPlate := lw.(*Plate); ok && isPlate {
		return p, nil
	}
	return nil, fmt.Errorf("no plate named %q on deck", name)
}
