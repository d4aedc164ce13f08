package protocol

import "errors"

// ValidateVolumes checks that every volume lies in (0, max].
func ValidateVolumes(volumes []float64, max float64) error {
	for i, v := range volumes {
		// !(v > 0) also rejects NaN
		if !(v > 0) || v > max {
			return &VolumeError{Position: i, Volume: v, Max: max}
		}
	}
	return nil
}

// CheckTipBudget fails when the protocol needs more tips than are loaded.
func CheckTipBudget(required, available int) error {
	if required > available {
		return &TipBudgetError{Required: required, Available: available}
	}
	return nil
}

// AvailableTips sums the tips currently held by the racks.
func AvailableTips(racks []TipRack) int {
	total := 0
	for _, r := range racks {
		total += r.TipCount()
	}
	return total
}

// CheckCapacity validates every compound against its trough and reports all
// violations together.
func CheckCapacity(compounds []Compound) error {
	var errs []error
	for _, c := range compounds {
		// NaN compares false both ways and must not pass.
		if !(c.TotalRequiredVolume <= c.TroughCapacity) {
			errs = append(errs, &CapacityError{
				Compound: c.Name,
				Required: c.TotalRequiredVolume,
				Capacity: c.TroughCapacity,
			})
		}
	}
	return errors.Join(errs...)
}
