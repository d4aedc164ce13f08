package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// --- MockLiquidHandler ---

type handlerCall struct {
	Op        Step
	Target    string // rack, plate or joined sources
	Positions []string
	Volumes   []float64
}

type MockLiquidHandler struct {
	Calls    []handlerCall
	SetupErr error

	// FailOn fails the FailAt-th call (1-based) of a step with FailErr.
	FailOn  Step
	FailAt  int
	FailErr error

	holding bool
	counts  map[Step]int
}

func (m *MockLiquidHandler) Setup(ctx context.Context) error { return m.SetupErr }

func (m *MockLiquidHandler) record(op Step, target string, positions []string, volumes []float64) error {
	if m.counts == nil {
		m.counts = make(map[Step]int)
	}
	m.counts[op]++
	m.Calls = append(m.Calls, handlerCall{Op: op, Target: target, Positions: positions, Volumes: volumes})
	if op == m.FailOn && m.counts[op] == m.FailAt {
		if m.FailErr != nil {
			return m.FailErr
		}
		return fmt.Errorf("%s failed", op)
	}
	return nil
}

func (m *MockLiquidHandler) PickUpTips(ctx context.Context, rack string, positions []string) error {
	if err := m.record(StepPickUpTips, rack, positions, nil); err != nil {
		return err
	}
	m.holding = true
	return nil
}

func (m *MockLiquidHandler) Aspirate(ctx context.Context, sources []string, volumes []float64) error {
	return m.record(StepAspirate, strings.Join(sources, ","), nil, volumes)
}

func (m *MockLiquidHandler) Dispense(ctx context.Context, plate string, wells []string, volumes []float64) error {
	return m.record(StepDispense, plate, wells, volumes)
}

func (m *MockLiquidHandler) DropTips(ctx context.Context, rack string, positions []string) error {
	if err := m.record(StepDropTips, rack, positions, nil); err != nil {
		return err
	}
	m.holding = false
	return nil
}

func (m *MockLiquidHandler) HasTips() bool { return m.holding }

func (m *MockLiquidHandler) Ops() []Step {
	out := make([]Step, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Op
	}
	return out
}

func (m *MockLiquidHandler) Count(op Step) int { return m.counts[op] }

// --- MockVisualizer ---

type MockVisualizer struct {
	Labels     []string
	SetupCalls int
	StopCalls  int
	SetupErr   error
	StopErr    error
	// FailLabel makes CaptureFrame fail for a label with this prefix.
	FailLabel string
	// RunIDs seen by Setup and Stop.
	RunIDs []string
}

func (m *MockVisualizer) Setup(ctx context.Context) error {
	m.SetupCalls++
	id, _ := RunIDFromContext(ctx)
	m.RunIDs = append(m.RunIDs, id)
	return m.SetupErr
}

func (m *MockVisualizer) CaptureFrame(ctx context.Context, label string) error {
	if m.FailLabel != "" && strings.HasPrefix(label, m.FailLabel) {
		return errors.New("frame capture failed")
	}
	m.Labels = append(m.Labels, label)
	return nil
}

func (m *MockVisualizer) Stop(ctx context.Context) error {
	m.StopCalls++
	id, _ := RunIDFromContext(ctx)
	m.RunIDs = append(m.RunIDs, id)
	return m.StopErr
}

// --- Labware mocks ---

type MockTrough struct {
	name    string
	max     float64
	Filled  map[string]float64
	FillErr error
	Fills   int
}

func newMockTrough(name string, max float64) *MockTrough {
	return &MockTrough{name: name, max: max, Filled: make(map[string]float64)}
}

func (m *MockTrough) Name() string       { return m.name }
func (m *MockTrough) MaxVolume() float64 { return m.max }

func (m *MockTrough) SetLiquid(compound string, volume float64) error {
	m.Fills++
	if m.FillErr != nil {
		return m.FillErr
	}
	m.Filled[compound] = volume
	return nil
}

type MockTipRack struct {
	name  string
	count int
}

func (m *MockTipRack) Name() string  { return m.name }
func (m *MockTipRack) TipCount() int { return m.count }

type MockPlate struct {
	name string
	max  float64
}

func (m *MockPlate) Name() string           { return m.name }
func (m *MockPlate) WellMaxVolume() float64 { return m.max }
