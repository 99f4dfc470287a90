package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"enerloop/internal/config"
	"enerloop/internal/engine"
	"enerloop/internal/idf"
	"enerloop/internal/ledger"
	"enerloop/internal/pipeline"
)

var (
	runWorkDir string
	runNoSave  bool
)

var runCmd = &cobra.Command{
	Use:   "run <model.idf> <weather.epw>",
	Short: "Correct a model and run it through the convergence loop",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "working directory for engine runs (default: temp dir)")
	runCmd.Flags().BoolVar(&runNoSave, "no-ledger", false, "do not record the run in the ledger")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	outcome, err := runOnce(ctx, cfg, args[0], args[1])
	if err != nil {
		return err
	}

	if !runNoSave {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()
		if err := l.RecordRun(ctx, outcome.Record()); err != nil {
			return err
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), renderOutcome(outcome))
	if outcome.State == pipeline.StateFailed {
		return fmt.Errorf("run failed: %s", outcome.FailureReason)
	}
	return nil
}

// runOnce drives one model through the full pipeline.
func runOnce(ctx context.Context, cfg *config.Config, modelFile, climateFile string) (*pipeline.Outcome, error) {
	data, err := os.ReadFile(modelFile)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	model, err := idf.Parse(string(data))
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Engine.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	workDir := runWorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "enerloop-*")
		if err != nil {
			return nil, fmt.Errorf("create workdir: %w", err)
		}
	}
	logger.Info("starting pipeline",
		zap.String("model", modelFile),
		zap.String("climate", climateFile),
		zap.String("workdir", workDir))

	runner := engine.New(cfg.Engine.Binary, timeout, logger)
	ctrl := pipeline.New(runner, cfg.Convergence.Options(), logger)
	return ctrl.Run(ctx, pipeline.Request{
		Model:       model,
		ClimateFile: climateFile,
		WorkDir:     workDir,
	})
}
