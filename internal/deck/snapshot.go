package deck

// Snapshot is a read-only copy of the deck state used for rendering.
type Snapshot struct {
	Rails    int
	Carriers []CarrierSnapshot
}

// CarrierSnapshot describes one carrier and its slots.
type CarrierSnapshot struct {
	Name  string
	Kind  Kind
	Rail  int
	Width int
	Slots []SlotSnapshot
}

// SlotSnapshot describes the labware in a slot. Empty slots have an empty Name.
// Exactly one of Trough, TipRack and Plate is set for an occupied slot.
type SlotSnapshot struct {
	Index   int
	Name    string
	Kind    Kind
	Trough  *TroughState
	TipRack *TipRackState
	Plate   *PlateState
}

// TroughState is the liquid in a trough.
type TroughState struct {
	Liquid    string
	Volume    float64
	MaxVolume float64
}

// TipRackState is the tip occupancy of a rack, row-major.
type TipRackState struct {
	Rows, Columns int
	Tips          []bool
}

// PlateState is the per-well volume and liquid of a plate, row-major.
type PlateState struct {
	Rows, Columns int
	WellMaxVolume float64
	Volumes       []float64
	Liquids       []string
}

// Snapshot copies the current deck state.
func (d *Deck) Snapshot() Snapshot {
	s := Snapshot{Rails: d.rails, Carriers: make([]CarrierSnapshot, 0, len(d.carriers))}
	for _, c := range d.carriers {
		cs := CarrierSnapshot{Name: c.name, Kind: c.kind, Rail: c.rail, Width: c.width}
		for i, lw := range c.slots {
			slot := SlotSnapshot{Index: i}
			if lw != nil {
				slot.Name = lw.Name()
				slot.Kind = lw.Kind()
			}
			switch v := lw.(type) {
			case *Trough:
				slot.Trough = &TroughState{Liquid: v.liquid, Volume: v.volume, MaxVolume: v.maxVolume}
			case *TipRack:
				slot.TipRack = &TipRackState{Rows: v.rows, Columns: v.cols, Tips: append([]bool(nil), v.tips...)}
			case *Plate:
				slot.Plate = &PlateState{
					Rows:          v.rows,
					Columns:       v.cols,
					WellMaxVolume: v.wellMaxVolume,
					Volumes:       append([]float64(nil), v.volumes...),
					Liquids:       append([]string(nil), v.liquids...),
				}
			}
			cs.Slots = append(cs.Slots, slot)
		}
		s.Carriers = append(s.Carriers, cs)
	}
	return s
}

// Liquids returns the distinct liquid names on the deck in first-seen order.
func (s Snapshot) Liquids() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, c := range s.Carriers {
		for _, slot := range c.Slots {
			if slot.Trough != nil {
				add(slot.Trough.Liquid)
			}
			if slot.Plate != nil {
				for _, l := range slot.Plate.Liquids {
					add(l)
				}
			}
		}
	}
	return out
}
