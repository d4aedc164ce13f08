package protocol

import (
	"context"
	"fmt"
	"pipetter/internal/logging"
)

// Labware names the resources a batch moves liquid between.
type Labware struct {
	Trough  string // source trough
	Plate   string // destination plate
	TipRack string // rack tips are picked from and returned to
}

// TransferExecutor runs one batch through pick-up, aspirate, dispense and drop,
// capturing a checkpoint after each step.
type TransferExecutor struct {
	handler       LiquidHandler
	vis           Visualizer
	wellMaxVolume float64
}

// NewTransferExecutor creates an executor. A nil visualizer captures nothing.
func NewTransferExecutor(handler LiquidHandler, vis Visualizer, wellMaxVolume float64) *TransferExecutor {
	if vis == nil {
		vis = nopVisualizer{}
	}
	if wellMaxVolume <= 0 {
		wellMaxVolume = DefaultWellMaxVolume
	}
	return &TransferExecutor{handler: handler, vis: vis, wellMaxVolume: wellMaxVolume}
}

// Execute runs the batch. Invalid volumes are rejected before any physical step and
// returned as *VolumeError. A failed step returns *TransferError after releasing any
// held tips; the release outcome never replaces the original cause.
func (e *TransferExecutor) Execute(ctx context.Context, batch Batch, lw Labware) error {
	volumes := batch.Volumes()
	if err := ValidateVolumes(volumes, e.wellMaxVolume); err != nil {
		logging.Get(logging.CategoryExecutor).Error("Rejected %s batch %d: %v", batch.Compound, batch.Index, err)
		return err
	}

	n := batch.Size()
	positions := TipPositions(n)
	wells := batch.Wells()
	sources := make([]string, n)
	for i := range sources {
		sources[i] = lw.Trough
	}

	log := logging.Get(logging.CategoryExecutor).WithContext(map[string]interface{}{
		"compound": batch.Compound,
		"batch":    batch.Index,
	})
	log.Debug("Executing batch: wells=%v volumes=%v", wells, volumes)

	steps := []struct {
		step  Step
		msg   string
		label string
		run   func() error
	}{
		{StepPickUpTips, "Picking up tips...", fmt.Sprintf("pick_up_tips_%s", positionsLabel(positions)), func() error {
			return e.handler.PickUpTips(ctx, lw.TipRack, positions)
		}},
		{StepAspirate, "Aspirating...", fmt.Sprintf("aspirate_%s", batch.Compound), func() error {
			return e.handler.Aspirate(ctx, sources, volumes)
		}},
		{StepDispense, "Dispensing...", fmt.Sprintf("dispense_%s", batch.Compound), func() error {
			return e.handler.Dispense(ctx, lw.Plate, wells, volumes)
		}},
		{StepDropTips, "Dropping tips...", fmt.Sprintf("drop_tips_%s", positionsLabel(positions)), func() error {
			return e.handler.DropTips(ctx, lw.TipRack, positions)
		}},
	}

	for _, s := range steps {
		log.Info("%s", s.msg)
		err := s.run()
		if err == nil {
			if cerr := e.vis.CaptureFrame(ctx, s.label); cerr != nil {
				err = fmt.Errorf("checkpoint %s: %w", s.label, cerr)
			}
		}
		if err != nil {
			log.Error("Error during liquid handling: %v", err)
			return &TransferError{
				Step:      s.step,
				Compound:  batch.Compound,
				Batch:     batch.Index,
				Positions: positions,
				Cause:     err,
				Recovery:  e.recoverTips(context.WithoutCancel(ctx), lw.TipRack, positions),
			}
		}
	}
	return nil
}

// recoverTips releases held tips back to the positions they were picked from.
// No retries.
func (e *TransferExecutor) recoverTips(ctx context.Context, rack string, positions []string) RecoveryResult {
	log := logging.Get(logging.CategoryExecutor)
	if !e.handler.HasTips() {
		log.Debug("No tips held, recovery skipped")
		return RecoveryResult{}
	}
	log.Warn("Discarding tips %s on %s after failure", positionsLabel(positions), rack)
	if err := e.handler.DropTips(ctx, rack, positions); err != nil {
		rerr := &RecoveryError{Rack: rack, Positions: positions, Err: err}
		log.Error("Failed to safely discard tips after error: %v", err)
		return RecoveryResult{Attempted: true, Err: rerr}
	}
	return RecoveryResult{Attempted: true}
}
