package config

import "fmt"

// DeckConfig describes the deck layout: three carriers and the labware they hold.
type DeckConfig struct {
	Rails int `yaml:"rails" toml:"rails"`

	TroughCarrier  CarrierConfig `yaml:"trough_carrier" toml:"trough_carrier"`
	TroughCapacity float64       `yaml:"trough_capacity" toml:"trough_capacity"` // uL per trough, one trough per compound

	PlateCarrier CarrierConfig `yaml:"plate_carrier" toml:"plate_carrier"`
	Plate        PlateConfig   `yaml:"plate" toml:"plate"`

	TipCarrier CarrierConfig   `yaml:"tip_carrier" toml:"tip_carrier"`
	TipRacks   []TipRackConfig `yaml:"tip_racks" toml:"tip_racks"`
}

// CarrierConfig places a carrier on a rail.
type CarrierConfig struct {
	Name  string `yaml:"name" toml:"name"`
	Rail  int    `yaml:"rail" toml:"rail"`
	Slots int    `yaml:"slots" toml:"slots"`
}

// PlateConfig describes the destination plate.
type PlateConfig struct {
	Name          string  `yaml:"name" toml:"name"`
	Rows          int     `yaml:"rows" toml:"rows"`
	Columns       int     `yaml:"columns" toml:"columns"`
	WellMaxVolume float64 `yaml:"well_max_volume" toml:"well_max_volume"`
}

// TipRackConfig describes one tip rack on the tip carrier.
type TipRackConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Rows    int    `yaml:"rows" toml:"rows"`
	Columns int    `yaml:"columns" toml:"columns"`
	Filled  bool   `yaml:"filled" toml:"filled"`
}

// DefaultDeckConfig returns the reference layout: troughs on rail 2,
// the assay plate on rail 8 and two filled tip racks on rail 22.
func DefaultDeckConfig() DeckConfig {
	return DeckConfig{
		Rails:          32,
		TroughCarrier:  CarrierConfig{Name: "trough carrier", Rail: 2, Slots: 4},
		TroughCapacity: 25000,
		PlateCarrier:   CarrierConfig{Name: "plate carrier", Rail: 8, Slots: 5},
		Plate: PlateConfig{
			Name:          "assay_plate",
			Rows:          8,
			Columns:       12,
			WellMaxVolume: 360,
		},
		TipCarrier: CarrierConfig{Name: "tip carrier", Rail: 22, Slots: 5},
		TipRacks: []TipRackConfig{
			{Name: "tips_01", Rows: 8, Columns: 12, Filled: true},
			{Name: "tips_02", Rows: 8, Columns: 12, Filled: true},
		},
	}
}

// TroughName returns the trough name used for a compound.
func TroughName(compound string) string {
	return "trough_" + compound
}

func (d DeckConfig) validate(compounds int) error {
	if d.Rails < 1 {
		return fmt.Errorf("deck.rails must be >= 1")
	}
	for _, c := range []CarrierConfig{d.TroughCarrier, d.PlateCarrier, d.TipCarrier} {
		if c.Rail < 1 || c.Rail > d.Rails {
			return fmt.Errorf("deck: carrier %q rail %d outside 1..%d", c.Name, c.Rail, d.Rails)
		}
		if c.Slots < 1 {
			return fmt.Errorf("deck: carrier %q needs at least one slot", c.Name)
		}
	}
	if compounds > d.TroughCarrier.Slots {
		return fmt.Errorf("deck: %d compounds need %d trough slots, carrier %q has %d",
			compounds, compounds, d.TroughCarrier.Name, d.TroughCarrier.Slots)
	}
	if d.TroughCapacity <= 0 {
		return fmt.Errorf("deck.trough_capacity must be > 0")
	}
	if d.Plate.Rows < 1 || d.Plate.Columns < 1 {
		return fmt.Errorf("deck.plate must have at least one row and column")
	}
	if d.Plate.WellMaxVolume <= 0 {
		return fmt.Errorf("deck.plate.well_max_volume must be > 0")
	}
	if d.PlateCarrier.Slots < 1 {
		return fmt.Errorf("deck: plate carrier has no slots")
	}
	if len(d.TipRacks) == 0 {
		return fmt.Errorf("deck.tip_racks must list at least one rack")
	}
	if len(d.TipRacks) > d.TipCarrier.Slots {
		return fmt.Errorf("deck: %d tip racks exceed carrier %q slots %d", len(d.TipRacks), d.TipCarrier.Name, d.TipCarrier.Slots)
	}
	names := make(map[string]bool, len(d.TipRacks))
	for _, r := range d.TipRacks {
		if r.Name == "" {
			return fmt.Errorf("deck.tip_racks contains an unnamed rack")
		}
		if names[r.Name] {
			return fmt.Errorf("deck.tip_racks lists %q twice", r.Name)
		}
		names[r.Name] = true
		if r.Rows < 1 || r.Columns < 1 {
			return fmt.Errorf("deck: tip rack %q must have at least one row and column", r.Name)
		}
	}
	return nil
}

func (d DeckConfig) tipRack(name string) (TipRackConfig, bool) {
	for _, r := range d.TipRacks {
		if r.Name == name {
			return r, true
		}
	}
	return TipRackConfig{}, false
}
