package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WellCoordinateFor maps a linear row index onto a plate filled column by column:
// 0 -> A1, numRows-1 -> last row of column 1, numRows -> A2.
// A non-positive numRows falls back to DefaultNumRows.
func WellCoordinateFor(index, numRows int) WellCoordinate {
	if numRows <= 0 {
		numRows = DefaultNumRows
	}
	row := index % numRows
	col := index/numRows + 1
	return WellCoordinate{Row: string(rune('A' + row)), Column: col}
}

// TipPositions returns the tip positions used by a batch of n transfers:
// column 1, rows A onwards.
func TipPositions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%c1", 'A'+i)
	}
	return out
}

// PlanBatches splits the requests of one compound into consecutive batches of at most k.
// Order is preserved; the last batch may be short.
func PlanBatches(requests []TransferRequest, k, numRows int) ([]Batch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", k)
	}
	if numRows <= 0 {
		return nil, fmt.Errorf("row count must be positive, got %d", numRows)
	}
	if len(requests) == 0 {
		return nil, nil
	}

	compound := requests[0].Compound
	batches := make([]Batch, 0, (len(requests)+k-1)/k)
	for start := 0; start < len(requests); start += k {
		end := min(start+k, len(requests))
		batch := Batch{Index: len(batches), Compound: compound, Transfers: make([]Transfer, 0, end-start)}
		for slot, req := range requests[start:end] {
			if req.Compound != compound {
				return nil, fmt.Errorf("cannot batch %s with %s: one compound per batch", req.Compound, compound)
			}
			batch.Transfers = append(batch.Transfers, Transfer{
				Request:     req,
				Destination: WellCoordinateFor(req.RowIndex, numRows),
				TipSlot:     slot,
			})
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// errNotFinite rejects NaN and infinite cells, which ParseFloat accepts.
var errNotFinite = errors.New("volume is not a finite number")

// ParseRequests extracts the non-empty cells of one compound column. Blank cells mean
// no transfer; anything else must parse as a finite number.
func ParseRequests(rows []map[string]string, compound string) ([]TransferRequest, error) {
	var out []TransferRequest
	for i, row := range rows {
		cell := strings.TrimSpace(row[compound])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &CellError{Row: i, Compound: compound, Value: cell, Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &CellError{Row: i, Compound: compound, Value: cell, Err: errNotFinite}
		}
		out = append(out, TransferRequest{RowIndex: i, Compound: compound, Volume: v})
	}
	return out, nil
}

// RequiredVolume sums the request volumes and applies the buffer factor.
func RequiredVolume(requests []TransferRequest, bufferFactor float64) float64 {
	var total float64
	for _, r := range requests {
		total += r.Volume
	}
	return total * bufferFactor
}

// CompoundPlan is the planned work for one compound.
type CompoundPlan struct {
	Compound Compound
	Requests []TransferRequest
	Batches  []Batch
}

// Plan is the full batch plan for a run, compounds in processing order.
type Plan struct {
	Compounds    []CompoundPlan
	TipsRequired int
}

// PlanOptions parameterises BuildPlan.
type PlanOptions struct {
	BatchSize    int
	NumRows      int
	BufferFactor float64
	// Capacity returns the trough capacity for a compound.
	Capacity func(compound string) float64
}

// BuildPlan parses every compound column, computes buffered totals and splits the
// requests into batches. It does not check capacities or the tip budget.
func BuildPlan(rows []map[string]string, compounds []string, opts PlanOptions) (*Plan, error) {
	plan := &Plan{Compounds: make([]CompoundPlan, 0, len(compounds))}
	for _, name := range compounds {
		reqs, err := ParseRequests(rows, name)
		if err != nil {
			return nil, err
		}
		batches, err := PlanBatches(reqs, opts.BatchSize, opts.NumRows)
		if err != nil {
			return nil, fmt.Errorf("failed to plan %s: %w", name, err)
		}
		var capacity float64
		if opts.Capacity != nil {
			capacity = opts.Capacity(name)
		}
		plan.Compounds = append(plan.Compounds, CompoundPlan{
			Compound: Compound{
				Name:                name,
				TroughCapacity:      capacity,
				TotalRequiredVolume: RequiredVolume(reqs, opts.BufferFactor),
			},
			Requests: reqs,
			Batches:  batches,
		})
		plan.TipsRequired += len(reqs)
	}
	return plan, nil
}

// CompoundList returns the compounds of the plan.
func (p *Plan) CompoundList() []Compound {
	out := make([]Compound, len(p.Compounds))
	for i, cp := range p.Compounds {
		out[i] = cp.Compound
	}
	return out
}

// BatchCount returns the number of batches across all compounds.
func (p *Plan) BatchCount() int {
	n := 0
	for _, cp := range p.Compounds {
		n += len(cp.Batches)
	}
	return n
}
