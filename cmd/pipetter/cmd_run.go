package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"pipetter/internal/artifacts"
	"pipetter/internal/config"
	"pipetter/internal/deck"
	"pipetter/internal/input"
	"pipetter/internal/liquidhandler"
	"pipetter/internal/logging"
	"pipetter/internal/metrics"
	"pipetter/internal/protocol"
	"pipetter/internal/visualizer"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// runCmd executes the protocol end to end
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transfer protocol on the simulated liquid handler",
	Long: `Loads the protocol CSV, builds the deck, checks trough capacities and the tip
budget, fills the troughs and executes every batch. Frames are written to
visualizer.output_dir and assembled into a timestamped GIF when the run ends,
whether it succeeded or not.`,
	Args: cobra.NoArgs,
	RunE: runProtocol,
}

// runSetup is everything a run needs, built from config.
type runSetup struct {
	rows     []map[string]string
	layout   *deck.Layout
	orch     *protocol.Orchestrator
	recorder *visualizer.Recorder // nil when the visualizer is disabled
	store    artifacts.Store      // nil when publishing is disabled
}

func runProtocol(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setup, err := buildRun(ctx, cfg, time.Now())
	if err != nil {
		return err
	}

	run, runErr := setup.orch.Run(ctx, setup.rows, cfg.Protocol.Compounds)
	if runErr != nil {
		logging.Get(logging.CategoryProtocol).Error("Protocol failed: %v", runErr)
	}

	if cfg.Metrics.Textfile != "" && run != nil {
		if err := exportMetrics(ctx, setup.store, run, runErr); err != nil {
			logging.Get(logging.CategoryMetrics).Warn("%v", err)
		}
	}

	gifURL := publishedURL(ctx, setup)
	fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(run, runErr, setup.recorder, gifURL))
	return runErr
}

// publishedURL returns a download link for the published GIF when the store
// supports presigning.
func publishedURL(ctx context.Context, setup *runSetup) string {
	if setup.store == nil || setup.recorder == nil {
		return ""
	}
	key := setup.recorder.Published().Key
	if key == "" {
		return ""
	}
	url, err := setup.store.PresignURL(context.WithoutCancel(ctx), key, cfg.GetURLExpiry())
	if err != nil {
		if !errors.Is(err, artifacts.ErrUnsupported) {
			logging.Get(logging.CategoryArtifacts).Warn("Failed to presign %s: %v", key, err)
		}
		return ""
	}
	return url
}

// buildRun loads the input and wires deck, handler, visualizer and orchestrator.
func buildRun(ctx context.Context, cfg *config.Config, now time.Time) (*runSetup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tbl, err := input.Load(cfg.Protocol.Input)
	if err != nil {
		return nil, err
	}
	if err := tbl.RequireColumns(cfg.Protocol.Compounds...); err != nil {
		return nil, err
	}

	layout, err := deck.Build(cfg.Deck, cfg.Protocol.Compounds)
	if err != nil {
		return nil, err
	}
	handler, err := liquidhandler.NewFromConfig(cfg.Handler, layout.Deck)
	if err != nil {
		return nil, err
	}
	store, err := artifacts.Open(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	setup := &runSetup{rows: tbl.Rows, layout: layout, store: store}
	res := protocol.Resources{
		Handler:  handler,
		Troughs:  make(map[string]protocol.Trough, len(layout.Troughs)),
		TipRacks: make([]protocol.TipRack, 0, len(layout.TipRacks)),
		Plate:    layout.Plate,
		TipRack:  cfg.Protocol.TipRack,
	}
	for compound, t := range layout.Troughs {
		res.Troughs[compound] = t
	}
	for _, r := range layout.TipRacks {
		res.TipRacks = append(res.TipRacks, r)
	}

	if cfg.Visualizer.Enabled {
		renderer, err := visualizer.NewRenderer(cfg.Visualizer)
		if err != nil {
			return nil, err
		}
		setup.recorder = visualizer.NewRecorder(layout.Deck, renderer, visualizer.Options{
			OutputDir:  cfg.Visualizer.OutputDir,
			GIFPath:    cfg.GIFPath(now),
			FrameDelay: cfg.GetFrameDelay(),
			Store:      store,
			Prefix:     cfg.Artifacts.Prefix,
		})
		res.Visualizer = setup.recorder
	}

	setup.orch = protocol.NewOrchestrator(protocol.Config{
		BatchSize:    cfg.Protocol.BatchSize,
		NumRows:      cfg.Protocol.NumRows,
		BufferFactor: cfg.Protocol.BufferFactor,
	})
	if err := setup.orch.Configure(res); err != nil {
		return nil, err
	}
	return setup, nil
}

func exportMetrics(ctx context.Context, store artifacts.Store, run *protocol.Run, runErr error) error {
	m := metrics.NewRecorder()
	m.ObserveRun(run, runErr)
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		return err
	}
	if _, err := artifacts.Publish(context.WithoutCancel(ctx), store, cfg.Artifacts.Prefix, run.ID, cfg.Metrics.Textfile, nil); err != nil {
		return err
	}
	return nil
}
