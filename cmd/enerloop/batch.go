package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"enerloop/internal/batch"
	"enerloop/internal/config"
	"enerloop/internal/engine"
	"enerloop/internal/ledger"
	"enerloop/internal/pipeline"
)

var batchClimate string

var batchCmd = &cobra.Command{
	Use:   "batch <model.idf>...",
	Short: "Run several models through the pipeline concurrently",
	Long: `batch processes independent models concurrently, each in its own
isolated working directory, and records every outcome in the ledger.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchClimate, "climate", "", "climate file shared by all models (required)")
	_ = batchCmd.MarkFlagRequired("climate")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	timeout, err := cfg.Engine.TimeoutDuration()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	workRoot, err := os.MkdirTemp("", "enerloop-batch-*")
	if err != nil {
		return fmt.Errorf("create work root: %w", err)
	}

	jobs := make([]batch.Job, len(args))
	for i, modelFile := range args {
		name := strings.TrimSuffix(filepath.Base(modelFile), filepath.Ext(modelFile))
		jobs[i] = batch.Job{Name: name, ModelFile: modelFile, ClimateFile: batchClimate}
	}

	runner := engine.New(cfg.Engine.Binary, timeout, logger)
	ctrl := pipeline.New(runner, cfg.Convergence.Options(), logger)
	p := batch.NewProcessor(ctrl, l, workRoot, cfg.Batch.Concurrency, logger)

	logger.Info("starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", cfg.Batch.Concurrency))

	failures := 0
	for _, res := range p.Process(ctx, jobs) {
		switch {
		case res.Err != nil:
			failures++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: error: %v\n", res.Job.Name, res.Err)
		case res.Outcome.State == pipeline.StateFailed:
			failures++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: failed: %s\n", res.Job.Name, res.Outcome.FailureReason)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d diagnostics, %.1f kWh)\n",
				res.Job.Name, res.Outcome.State, len(res.Outcome.Diagnostics),
				res.Outcome.Metrics.TotalEnergyKWh)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d jobs did not converge", failures, len(jobs))
	}
	return nil
}
