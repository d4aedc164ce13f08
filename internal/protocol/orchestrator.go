package protocol

import (
	"context"
	"errors"
	"fmt"
	"pipetter/internal/logging"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds the orchestrator's batching parameters.
type Config struct {
	BatchSize    int     // K: transfers per tip pick-up
	NumRows      int     // plate rows for the row-index -> well mapping
	BufferFactor float64 // applied to summed volumes when filling troughs

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Resources are the deck resources a run uses.
type Resources struct {
	Handler    LiquidHandler
	Visualizer Visualizer // optional
	Troughs    map[string]Trough
	TipRacks   []TipRack
	Plate      Plate
	TipRack    string // working rack; defaults to the first rack
}

// Orchestrator runs a whole protocol: setup, capacity and tip-budget checks, trough
// fill and per-compound batch execution, then visualizer finalization.
type Orchestrator struct {
	mu sync.Mutex

	config Config
	res    Resources

	configured bool
	running    bool
}

// NewOrchestrator creates an orchestrator, filling zero config fields with defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.NumRows <= 0 {
		cfg.NumRows = DefaultNumRows
	}
	if cfg.BufferFactor <= 0 {
		cfg.BufferFactor = DefaultBufferFactor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{config: cfg}
}

// Configure assigns the deck resources.
func (o *Orchestrator) Configure(res Resources) error {
	if res.Handler == nil {
		return fmt.Errorf("liquid handler is required")
	}
	if res.Plate == nil {
		return fmt.Errorf("destination plate is required")
	}
	if len(res.TipRacks) == 0 {
		return fmt.Errorf("at least one tip rack is required")
	}
	if res.TipRack == "" {
		res.TipRack = res.TipRacks[0].Name()
	}
	found := false
	for _, r := range res.TipRacks {
		if r.Name() == res.TipRack {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("working tip rack %q is not loaded", res.TipRack)
	}
	for name, t := range res.Troughs {
		if t == nil {
			return fmt.Errorf("trough for %s is nil", name)
		}
	}
	if res.Visualizer == nil {
		res.Visualizer = nopVisualizer{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("cannot reconfigure while a run is in progress")
	}
	o.res = res
	o.configured = true
	return nil
}

// Run executes the protocol for rows across compounds in order. The returned report is
// never nil; on failure it holds what was committed and the error is a *ProtocolError.
// The visualizer is stopped exactly once on every path.
func (o *Orchestrator) Run(ctx context.Context, rows []map[string]string, compounds []string) (run *Run, err error) {
	o.mu.Lock()
	if !o.configured {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator not configured")
	}
	if o.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("a run is already in progress")
	}
	o.running = true
	res := o.res
	o.mu.Unlock()

	run = &Run{ID: uuid.NewString(), StartedAt: o.config.Now()}
	ctx = WithRunID(ctx, run.ID)
	log := logging.Get(logging.CategoryProtocol).WithContext(map[string]interface{}{"run": run.ID})
	timer := logging.StartTimer(logging.CategoryProtocol, "protocol run")

	vis := &checkpointRecorder{vis: res.Visualizer, run: run, now: o.config.Now}
	fail := func(stage Stage, cause error) error {
		return &ProtocolError{RunID: run.ID, Stage: stage, Err: cause}
	}

	defer func() {
		if stopErr := res.Visualizer.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			if err == nil {
				err = fail(StageFinalize, stopErr)
			} else {
				log.Error("Failed to stop visualizer: %v", stopErr)
			}
		} else {
			log.Info("Stopped visualizer")
		}
		run.FinishedAt = o.config.Now()
		timer.Stop()

		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if err := res.Handler.Setup(ctx); err != nil {
		return run, fail(StageSetup, fmt.Errorf("liquid handler setup: %w", err))
	}
	if err := res.Visualizer.Setup(ctx); err != nil {
		return run, fail(StageSetup, fmt.Errorf("visualizer setup: %w", err))
	}
	if err := vis.CaptureFrame(ctx, "initial_state"); err != nil {
		return run, fail(StageSetup, err)
	}

	for _, name := range compounds {
		if _, ok := res.Troughs[name]; !ok {
			return run, fail(StageSetup, fmt.Errorf("no trough assigned to %s", name))
		}
	}

	plan, err := o.planWith(res, rows, compounds)
	if err != nil {
		return run, fail(StageParse, err)
	}
	run.Compounds = plan.CompoundList()

	if err := CheckCapacity(run.Compounds); err != nil {
		log.Error("Capacity check failed: %v", err)
		return run, fail(StageCapacity, err)
	}

	run.TipsRequired = plan.TipsRequired
	run.TipsAvailable = AvailableTips(res.TipRacks)
	log.Info("Protocol requires %d tips, %d available", run.TipsRequired, run.TipsAvailable)
	if err := CheckTipBudget(run.TipsRequired, run.TipsAvailable); err != nil {
		return run, fail(StageTipBudget, err)
	}

	for _, c := range run.Compounds {
		log.Info("Filling trough for %s with %.1fuL", c.Name, c.TotalRequiredVolume)
		if err := res.Troughs[c.Name].SetLiquid(c.Name, c.TotalRequiredVolume); err != nil {
			return run, fail(StageFill, fmt.Errorf("fill trough for %s: %w", c.Name, err))
		}
	}

	exec := NewTransferExecutor(res.Handler, vis, res.Plate.WellMaxVolume())
	for _, cp := range plan.Compounds {
		if len(cp.Requests) == 0 {
			log.Info("No data found for %s, skipping", cp.Compound.Name)
			continue
		}
		log.Info("Processing %d instances of %s", len(cp.Requests), cp.Compound.Name)
		lw := Labware{
			Trough:  res.Troughs[cp.Compound.Name].Name(),
			Plate:   res.Plate.Name(),
			TipRack: res.TipRack,
		}
		for _, batch := range cp.Batches {
			if err := ctx.Err(); err != nil {
				log.Warn("Run cancelled before %s batch %d", batch.Compound, batch.Index)
				return run, fail(StageExecute, err)
			}
			started := o.config.Now()
			if err := exec.Execute(ctx, batch, lw); err != nil {
				return run, fail(StageExecute, err)
			}
			run.Batches = append(run.Batches, BatchResult{
				Compound: batch.Compound,
				Index:    batch.Index,
				Size:     batch.Size(),
				Volume:   batch.TotalVolume(),
				Wells:    batch.Wells(),
				Duration: o.config.Now().Sub(started),
			})
		}
	}

	log.Info("Protocol complete: %d batches, %.1fuL transferred", len(run.Batches), run.TransferredVolume())
	return run, nil
}

func (o *Orchestrator) planWith(res Resources, rows []map[string]string, compounds []string) (*Plan, error) {
	return BuildPlan(rows, compounds, PlanOptions{
		BatchSize:    o.config.BatchSize,
		NumRows:      o.config.NumRows,
		BufferFactor: o.config.BufferFactor,
		Capacity: func(name string) float64 {
			return res.Troughs[name].MaxVolume()
		},
	})
}

// checkpointRecorder numbers and records every frame captured during a run.
type checkpointRecorder struct {
	vis Visualizer
	run *Run
	now func() time.Time
}

func (c *checkpointRecorder) Setup(ctx context.Context) error { return c.vis.Setup(ctx) }
func (c *checkpointRecorder) Stop(ctx context.Context) error  { return c.vis.Stop(ctx) }

func (c *checkpointRecorder) CaptureFrame(ctx context.Context, label string) error {
	if err := c.vis.CaptureFrame(ctx, label); err != nil {
		return err
	}
	c.run.Checkpoints = append(c.run.Checkpoints, Checkpoint{
		Seq:   len(c.run.Checkpoints) + 1,
		Label: label,
		At:    c.now(),
	})
	return nil
}

// FailedStep returns the step and recovery outcome of a transfer failure inside err.
func FailedStep(err error) (Step, RecoveryResult, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Step, te.Recovery, true
	}
	return "", RecoveryResult{}, false
}
