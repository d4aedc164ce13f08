package main

import (
	"errors"
	"fmt"
	"pipetter/internal/config"
	"pipetter/internal/deck"
	"pipetter/internal/input"
	"pipetter/internal/protocol"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var planRaw bool

// planCmd is a dry run: no handler, no frames
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the batch plan, trough volumes and tip budget without running",
	Args:  cobra.NoArgs,
	RunE:  planProtocol,
}

func init() {
	planCmd.Flags().BoolVar(&planRaw, "raw", false, "Print markdown without terminal styling")
}

func planProtocol(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	tbl, err := input.Load(cfg.Protocol.Input)
	if err != nil {
		return err
	}
	if err := tbl.RequireColumns(cfg.Protocol.Compounds...); err != nil {
		return err
	}

	report, err := buildPlanReport(cfg, tbl.Rows)
	if err != nil {
		return err
	}

	out := report.Markdown
	if !planRaw {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		if out, err = renderer.Render(report.Markdown); err != nil {
			return fmt.Errorf("failed to render plan: %w", err)
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return report.Problems
}

// planReport describes the run a config and input would produce.
type planReport struct {
	Plan      *protocol.Plan
	Available int
	Markdown  string
	// Problems is non-nil when the run would be rejected before any transfer.
	Problems error
}

func buildPlanReport(cfg *config.Config, rows []map[string]string) (*planReport, error) {
	layout, err := deck.Build(cfg.Deck, cfg.Protocol.Compounds)
	if err != nil {
		return nil, err
	}
	plan, err := protocol.BuildPlan(rows, cfg.Protocol.Compounds, protocol.PlanOptions{
		BatchSize:    cfg.Protocol.BatchSize,
		NumRows:      cfg.Protocol.NumRows,
		BufferFactor: cfg.Protocol.BufferFactor,
		Capacity: func(compound string) float64 {
			return layout.Troughs[compound].MaxVolume()
		},
	})
	if err != nil {
		return nil, err
	}

	racks := make([]protocol.TipRack, len(layout.TipRacks))
	for i, r := range layout.TipRacks {
		racks[i] = r
	}
	available := protocol.AvailableTips(racks)

	var b strings.Builder
	fmt.Fprintf(&b, "# Protocol plan\n\n")
	fmt.Fprintf(&b, "Input `%s`, %d rows, batch size %d, buffer x%.2f.\n\n",
		cfg.Protocol.Input, len(rows), cfg.Protocol.BatchSize, cfg.Protocol.BufferFactor)

	b.WriteString("## Troughs\n\n| Compound | Transfers | Required (uL) | Capacity (uL) | OK |\n|---|---:|---:|---:|---|\n")
	for _, cp := range plan.Compounds {
		c := cp.Compound
		ok := "yes"
		if c.TotalRequiredVolume > c.TroughCapacity {
			ok = "**no**"
		}
		fmt.Fprintf(&b, "| %s | %d | %.1f | %.0f | %s |\n", c.Name, len(cp.Requests), c.TotalRequiredVolume, c.TroughCapacity, ok)
	}

	fmt.Fprintf(&b, "\n## Tips\n\n%d required, %d available on %d racks.\n", plan.TipsRequired, available, len(racks))

	fmt.Fprintf(&b, "\n## Batches (%d)\n\n| Compound | Batch | Tips | Wells | Volumes (uL) |\n|---|---:|---|---|---|\n", plan.BatchCount())
	for _, cp := range plan.Compounds {
		for _, batch := range cp.Batches {
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n", batch.Compound, batch.Index+1,
				strings.Join(protocol.TipPositions(batch.Size()), ","),
				strings.Join(batch.Wells(), ","),
				formatVolumes(batch.Volumes()))
		}
	}

	problems := errors.Join(
		protocol.CheckCapacity(plan.CompoundList()),
		protocol.CheckTipBudget(plan.TipsRequired, available),
	)
	if problems != nil {
		fmt.Fprintf(&b, "\n## Problems\n\n")
		for _, line := range strings.Split(problems.Error(), "\n") {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return &planReport{Plan: plan, Available: available, Markdown: b.String(), Problems: problems}, nil
}

func formatVolumes(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
