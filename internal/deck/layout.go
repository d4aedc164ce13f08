package deck

import (
	"fmt"
	"pipetter/internal/config"
	"pipetter/internal/logging"
)

// Layout is a deck built from configuration together with handles to its labware.
type Layout struct {
	Deck     *Deck
	Troughs  map[string]*Trough // by compound
	TipRacks []*TipRack
	Plate    *Plate
}

// Build assembles the deck described by cfg with one trough per compound.
func Build(cfg config.DeckConfig, compounds []string) (*Layout, error) {
	timer := logging.StartTimer(logging.CategoryDeck, "deck build")
	defer timer.Stop()

	l := &Layout{Deck: New(cfg.Rails), Troughs: make(map[string]*Trough, len(compounds))}

	troughCar := NewTroughCarrier(cfg.TroughCarrier.Name, cfg.TroughCarrier.Slots)
	for i, compound := range compounds {
		t := NewTrough(config.TroughName(compound), cfg.TroughCapacity)
		if err := troughCar.Assign(i, t); err != nil {
			return nil, fmt.Errorf("failed to place trough for %s: %w", compound, err)
		}
		l.Troughs[compound] = t
	}

	plateCar := NewPlateCarrier(cfg.PlateCarrier.Name, cfg.PlateCarrier.Slots)
	l.Plate = NewPlate(cfg.Plate.Name, cfg.Plate.Rows, cfg.Plate.Columns, cfg.Plate.WellMaxVolume)
	if err := plateCar.Assign(0, l.Plate); err != nil {
		return nil, fmt.Errorf("failed to place plate: %w", err)
	}

	tipCar := NewTipCarrier(cfg.TipCarrier.Name, cfg.TipCarrier.Slots)
	for i, rc := range cfg.TipRacks {
		r := NewTipRack(rc.Name, rc.Rows, rc.Columns)
		if rc.Filled {
			r.Fill()
		}
		if err := tipCar.Assign(i, r); err != nil {
			return nil, fmt.Errorf("failed to place tip rack %s: %w", rc.Name, err)
		}
		l.TipRacks = append(l.TipRacks, r)
	}

	for _, a := range []struct {
		c    *Carrier
		rail int
	}{
		{troughCar, cfg.TroughCarrier.Rail},
		{plateCar, cfg.PlateCarrier.Rail},
		{tipCar, cfg.TipCarrier.Rail},
	} {
		if err := l.Deck.AssignCarrier(a.c, a.rail); err != nil {
			return nil, err
		}
	}

	logging.Deck("Deck ready: %d troughs, plate %s, %d tip racks", len(l.Troughs), l.Plate.Name(), len(l.TipRacks))
	return l, nil
}
