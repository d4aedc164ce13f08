package main

import (
	"fmt"
	"pipetter/internal/protocol"
	"pipetter/internal/visualizer"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#40CDA1"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5733"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8F5C85")).Width(12)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5C6C8F")).
			Padding(0, 1)
)

// renderRunSummary formats the outcome of a run for the terminal. gifURL is a
// download link for the published GIF, empty when the store cannot issue one.
func renderRunSummary(run *protocol.Run, runErr error, rec *visualizer.Recorder, gifURL string) string {
	var b strings.Builder
	if runErr == nil {
		b.WriteString(titleStyle.Render("Protocol completed"))
	} else {
		b.WriteString(failStyle.Render("Protocol failed"))
	}
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	if run != nil {
		row("Run", run.ID)
		row("Duration", run.Duration().Round(time.Millisecond).String())
		row("Tips", fmt.Sprintf("%d required, %d available", run.TipsRequired, run.TipsAvailable))
		row("Batches", fmt.Sprintf("%d committed", len(run.Batches)))
		row("Volume", fmt.Sprintf("%.1fuL transferred", run.TransferredVolume()))
		row("Frames", fmt.Sprintf("%d checkpoints", len(run.Checkpoints)))
		for _, c := range run.Compounds {
			row("  "+c.Name, fmt.Sprintf("%.1f / %.0fuL", c.TotalRequiredVolume, c.TroughCapacity))
		}
	}
	if rec != nil && len(rec.Frames()) > 0 {
		row("GIF", rec.GIFPath())
		if info := rec.Published(); info.Key != "" {
			row("Published", info.Key)
		}
		if gifURL != "" {
			row("URL", gifURL)
		}
	}
	if runErr != nil {
		row("Error", runErr.Error())
		if step, recovery, ok := protocol.FailedStep(runErr); ok {
			row("Step", string(step))
			row("Recovery", recovery.String())
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
