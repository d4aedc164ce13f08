// Package protocol runs a batched liquid-transfer protocol: it validates volumes and the
// tip budget, plans per-compound batches, and drives a liquid handler through
// pick-up / aspirate / dispense / drop for every batch, recovering held tips on failure.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Defaults used when a Config leaves a field zero.
const (
	DefaultBatchSize     = 8
	DefaultNumRows       = 8
	DefaultBufferFactor  = 1.1
	DefaultWellMaxVolume = 360.0
)

// TransferRequest is one non-empty input cell: move Volume of Compound to the well for RowIndex.
type TransferRequest struct {
	RowIndex int
	Compound string
	Volume   float64
}

// Compound is a reagent with its trough capacity and the volume the protocol needs from it.
type Compound struct {
	Name                string
	TroughCapacity      float64
	TotalRequiredVolume float64
}

// WellCoordinate addresses a plate well, e.g. A1.
type WellCoordinate struct {
	Row    string
	Column int
}

func (w WellCoordinate) String() string {
	return fmt.Sprintf("%s%d", w.Row, w.Column)
}

// Transfer is a planned request: its destination well and the tip slot that carries it.
type Transfer struct {
	Request     TransferRequest
	Destination WellCoordinate
	TipSlot     int
}

// Batch is a group of at most K transfers of one compound that share a single tip pick-up.
type Batch struct {
	Index     int
	Compound  string
	Transfers []Transfer
}

// Size returns the number of transfers in the batch.
func (b Batch) Size() int { return len(b.Transfers) }

// Volumes returns the transfer volumes in batch order.
func (b Batch) Volumes() []float64 {
	out := make([]float64, len(b.Transfers))
	for i, t := range b.Transfers {
		out[i] = t.Request.Volume
	}
	return out
}

// Wells returns the destination wells in batch order.
func (b Batch) Wells() []string {
	out := make([]string, len(b.Transfers))
	for i, t := range b.Transfers {
		out[i] = t.Destination.String()
	}
	return out
}

// TotalVolume sums the batch volumes.
func (b Batch) TotalVolume() float64 {
	var total float64
	for _, t := range b.Transfers {
		total += t.Request.Volume
	}
	return total
}

// Checkpoint is one captured visualizer frame.
type Checkpoint struct {
	Seq   int
	Label string
	At    time.Time
}

// BatchResult records a batch that completed all four steps.
type BatchResult struct {
	Compound string
	Index    int
	Size     int
	Volume   float64
	Wells    []string
	Duration time.Duration
}

// Run is the report of one protocol execution. It is returned even when the run fails,
// in which case it holds everything committed before the failure.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Compounds     []Compound
	TipsRequired  int
	TipsAvailable int
	Batches       []BatchResult
	Checkpoints   []Checkpoint
}

// Duration returns the wall time of the run, zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TransferredVolume sums the volume of all committed batches.
func (r *Run) TransferredVolume() float64 {
	var total float64
	for _, b := range r.Batches {
		total += b.Volume
	}
	return total
}

// CheckpointLabels returns the labels of all captured frames in order.
func (r *Run) CheckpointLabels() []string {
	out := make([]string, len(r.Checkpoints))
	for i, c := range r.Checkpoints {
		out[i] = c.Label
	}
	return out
}

func positionsLabel(positions []string) string {
	return strings.Join(positions, ",")
}
