package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"enerloop/internal/diag"
	"enerloop/internal/pipeline"
)

const runtimePrecision = 100 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(16)
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// renderOutcome formats one pipeline outcome for the terminal.
func renderOutcome(o *pipeline.Outcome) string {
	var b strings.Builder

	state := okStyle.Render(string(o.State))
	if o.State == pipeline.StateFailed {
		state = failStyle.Render(string(o.State) + ": " + o.FailureReason)
	}

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Simulation Result"))
	b.WriteString("\n")
	row("State", state)
	row("Attempts", fmt.Sprintf("%d", o.Attempts))
	row("Design fraction", fmt.Sprintf("%.3f", o.DesignFraction))
	row("Engine", o.EngineVersion)
	row("Revision", o.ModelRevision)
	row("Runtime", o.Runtime.Round(runtimePrecision).String())

	warnings := diag.Count(o.Diagnostics, diag.Warning)
	severe := diag.Count(o.Diagnostics, diag.Severe)
	fatal := diag.Count(o.Diagnostics, diag.Fatal)
	row("Diagnostics", fmt.Sprintf("%d warning, %d severe, %d fatal", warnings, severe, fatal))

	if o.State == pipeline.StateConverged {
		if o.Metrics.ExtractionFailed {
			row("Metrics", warnStyle.Render("extraction failed, fallback values"))
		} else {
			row("Source", o.Metrics.Source)
			row("Total energy", fmt.Sprintf("%.1f kWh", o.Metrics.TotalEnergyKWh))
			row("Floor area", fmt.Sprintf("%.1f m2", o.Metrics.FloorAreaM2))
			row("EUI", fmt.Sprintf("%.2f kWh/m2", o.Metrics.EUI()))
		}
	}

	if dominant := dominantIssue(o.Diagnostics); dominant != "" {
		row("Dominant issue", warnStyle.Render(dominant))
	}

	return borderStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

const summaryKeyLen = 40

// dominantIssue names the most frequent diagnostic class of the run.
func dominantIssue(diags []diag.Diagnostic) string {
	groups := diag.Summarize(diags, summaryKeyLen)
	if len(groups) == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%d)", groups[0].Message, groups[0].Count)
}
