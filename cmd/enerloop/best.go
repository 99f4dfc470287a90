package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"enerloop/internal/config"
	"enerloop/internal/diag"
	"enerloop/internal/ledger"
)

var bestFocus string

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the least-regressed recorded run",
	Long: `best queries the iteration ledger for the run with the fewest
diagnostics among all non-failed runs. With --focus, only diagnostics whose
message starts with the given prefix are scored, so optimization can chase
one defect class at a time.`,
	Args: cobra.NoArgs,
	RunE: runBest,
}

func init() {
	bestCmd.Flags().StringVar(&bestFocus, "focus", "", "score only diagnostics with this message prefix")
}

func runBest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	var best *ledger.RunRecord
	if bestFocus != "" {
		best, err = l.BestFocused(ctx, bestFocus)
	} else {
		best, err = l.Best(ctx)
	}
	if err != nil {
		return err
	}
	if best == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no successful runs recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run      %s\n", best.ID)
	fmt.Fprintf(out, "recorded %s\n", best.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "revision %s (engine %s)\n", best.ModelRevision, best.EngineVersion)
	fmt.Fprintf(out, "state    %s after %d attempt(s)\n", best.State, best.Attempts)
	fmt.Fprintf(out, "issues   %d warning, %d severe, %d fatal\n",
		diag.Count(best.Diagnostics, diag.Warning),
		diag.Count(best.Diagnostics, diag.Severe),
		diag.Count(best.Diagnostics, diag.Fatal))
	if !best.Metrics.ExtractionFailed {
		fmt.Fprintf(out, "energy   %.1f kWh over %.1f m2 (%.2f kWh/m2, via %s)\n",
			best.Metrics.TotalEnergyKWh, best.Metrics.FloorAreaM2,
			best.Metrics.EUI(), best.Metrics.Source)
	}
	return nil
}
