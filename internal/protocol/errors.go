package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match these with errors.Is.
var (
	ErrInvalidVolume    = errors.New("invalid volume")
	ErrInsufficientTips = errors.New("insufficient tips")
	ErrCapacityExceeded = errors.New("trough capacity exceeded")
	ErrTransferFailure  = errors.New("transfer failed")
	ErrRecoveryFailure  = errors.New("tip recovery failed")
	ErrProtocolFailure  = errors.New("protocol failed")
)

// Step names a physical step of a batch.
type Step string

const (
	StepValidate   Step = "validate"
	StepPickUpTips Step = "pick_up_tips"
	StepAspirate   Step = "aspirate"
	StepDispense   Step = "dispense"
	StepDropTips   Step = "drop_tips"
)

// Stage names the phase of a run in which it failed.
type Stage string

const (
	StageSetup     Stage = "setup"
	StageParse     Stage = "parse"
	StageCapacity  Stage = "capacity"
	StageTipBudget Stage = "tip_budget"
	StageFill      Stage = "fill"
	StageExecute   Stage = "execute"
	StageFinalize  Stage = "finalize"
)

// VolumeError reports a volume outside (0, Max].
type VolumeError struct {
	Position int
	Volume   float64
	Max      float64
}

func (e *VolumeError) Error() string {
	return fmt.Sprintf("volume %.1fuL at position %d must be between 0 and %.1fuL", e.Volume, e.Position, e.Max)
}

func (e *VolumeError) Is(target error) bool { return target == ErrInvalidVolume }

// CellError reports an input cell that is not a finite number.
type CellError struct {
	Row      int
	Compound string
	Value    string
	Err      error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d %s: cannot parse volume %q: %v", e.Row, e.Compound, e.Value, e.Err)
}

func (e *CellError) Is(target error) bool { return target == ErrInvalidVolume }
func (e *CellError) Unwrap() error        { return e.Err }

// TipBudgetError reports that the protocol needs more tips than the racks hold.
type TipBudgetError struct {
	Required  int
	Available int
}

func (e *TipBudgetError) Error() string {
	return fmt.Sprintf("not enough tips available: need %d, have %d", e.Required, e.Available)
}

func (e *TipBudgetError) Is(target error) bool { return target == ErrInsufficientTips }

// CapacityError reports a compound whose buffered requirement exceeds its trough.
// It matches both ErrCapacityExceeded and ErrInvalidVolume.
type CapacityError struct {
	Compound string
	Required float64
	Capacity float64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("required volume %.1fuL for %s exceeds trough capacity %.1fuL", e.Required, e.Compound, e.Capacity)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded || target == ErrInvalidVolume
}

// RecoveryResult is the outcome of the best-effort tip release after a failed step.
type RecoveryResult struct {
	Attempted bool
	Err       error
}

// Skipped reports that no tips were held so nothing was released.
func (r RecoveryResult) Skipped() bool { return !r.Attempted }

// Succeeded reports that held tips were released.
func (r RecoveryResult) Succeeded() bool { return r.Attempted && r.Err == nil }

func (r RecoveryResult) String() string {
	switch {
	case !r.Attempted:
		return "skipped"
	case r.Err != nil:
		return "failed"
	default:
		return "tips released"
	}
}

// RecoveryError reports that held tips could not be released.
type RecoveryError struct {
	Rack      string
	Positions []string
	Err       error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("failed to safely discard tips %s on %s: %v", positionsLabel(e.Positions), e.Rack, e.Err)
}

func (e *RecoveryError) Is(target error) bool { return target == ErrRecoveryFailure }
func (e *RecoveryError) Unwrap() error        { return e.Err }

// TransferError reports a failed physical step. Cause is the collaborator error;
// Recovery records what happened to the tips afterwards.
type TransferError struct {
	Step      Step
	Compound  string
	Batch     int
	Positions []string
	Cause     error
	Recovery  RecoveryResult
}

func (e *TransferError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed for %s batch %d (tips %s): %v", e.Step, e.Compound, e.Batch, positionsLabel(e.Positions), e.Cause)
	if e.Recovery.Err != nil {
		fmt.Fprintf(&b, " (recovery: %v)", e.Recovery.Err)
	}
	return b.String()
}

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailure }
func (e *TransferError) Unwrap() error        { return e.Cause }

// ProtocolError is the error returned by Orchestrator.Run.
type ProtocolError struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolFailure }
func (e *ProtocolError) Unwrap() error        { return e.Err }
