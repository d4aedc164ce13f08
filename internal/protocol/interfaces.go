package protocol

import "context"

// LiquidHandler is the robot the executor drives. Calls block until the step finishes.
type LiquidHandler interface {
	Setup(ctx context.Context) error
	PickUpTips(ctx context.Context, rack string, positions []string) error
	Aspirate(ctx context.Context, sources []string, volumes []float64) error
	Dispense(ctx context.Context, plate string, wells []string, volumes []float64) error
	DropTips(ctx context.Context, rack string, positions []string) error
	HasTips() bool
}

// Visualizer captures one frame per checkpoint and renders the run when stopped.
type Visualizer interface {
	Setup(ctx context.Context) error
	CaptureFrame(ctx context.Context, label string) error
	Stop(ctx context.Context) error
}

// Trough is a reagent reservoir, one per compound.
type Trough interface {
	Name() string
	MaxVolume() float64
	SetLiquid(compound string, volume float64) error
}

// TipRack is a rack of disposable tips.
type TipRack interface {
	Name() string
	TipCount() int
}

// Plate is the destination plate.
type Plate interface {
	Name() string
	WellMaxVolume() float64
}

type nopVisualizer struct{}

func (nopVisualizer) Setup(context.Context) error                { return nil }
func (nopVisualizer) CaptureFrame(context.Context, string) error { return nil }
func (nopVisualizer) Stop(context.Context) error                 { return nil }
