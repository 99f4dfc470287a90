// Package engine invokes the external simulation engine as a blocking
// subprocess under a hard timeout and locates the artifacts it writes. The
// engine is opaque: this package never interprets results beyond reading its
// output files back.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Standard artifact names the engine writes into its output directory.
const (
	resultsDBName = "eplusout.sql"
	summaryName   = "eplustbl.htm"
	tableName     = "eplustbl.csv"
	errLogName    = "eplusout.err"
	sizingLogName = "eplusout.eio"
)

// Failure is the terminal error for one engine attempt: a crash or timeout.
// The engine's own diagnostics are data, not errors; they travel in the
// RunResult even when Failure is returned.
type Failure struct {
	Timeout bool
	Err     error
}

func (f *Failure) Error() string {
	if f.Timeout {
		return fmt.Sprintf("engine: timed out: %v", f.Err)
	}
	return fmt.Sprintf("engine: %v", f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Artifacts holds the output paths of one run. A path is present even when
// the file is not; readers must tolerate absent files.
type Artifacts struct {
	ResultsDB string
	Summary   string
	Table     string
	ErrLog    string
	SizingLog string
}

// RunResult is the outcome of one engine invocation.
type RunResult struct {
	Artifacts Artifacts
	Version   string
	Runtime   time.Duration
	ErrLog    string // raw diagnostic log contents, "" when absent
	SizingLog string // raw sizing log contents, "" when absent
}

// Executor runs the engine binary. Safe for concurrent use across model
// instances as long as each call gets its own output directory; the engine
// has no contract for sharing one.
type Executor struct {
	binary  string
	timeout time.Duration
	log     *zap.Logger
}

// New returns an Executor for the given engine binary with a hard per-run
// timeout.
func New(binary string, timeout time.Duration, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{binary: binary, timeout: timeout, log: log}
}

// Run invokes engine(modelFile, climateFile, outputDir) and blocks until it
// exits or the timeout fires. On timeout or external cancellation the
// process is forcibly terminated and the output directory removed; no
// partial artifacts survive. A crash returns a Failure alongside whatever
// logs the engine managed to write.
func (e *Executor) Run(ctx context.Context, modelFile, climateFile, outDir string) (*RunResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.binary, modelFile, climateFile, outDir)
	cmd.Dir = outDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second // escalate if the engine ignores the kill

	e.log.Info("running engine",
		zap.String("binary", e.binary),
		zap.String("model", modelFile),
		zap.Duration("timeout", e.timeout))

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if execCtx.Err() != nil {
		// Timeout or external cancellation: the directory's contents are
		// unusable half-written state.
		if rmErr := os.RemoveAll(outDir); rmErr != nil {
			e.log.Warn("failed to remove output dir after timeout", zap.Error(rmErr))
		}
		e.log.Error("engine terminated",
			zap.Duration("after", elapsed),
			zap.Bool("timeout", errors.Is(execCtx.Err(), context.DeadlineExceeded)))
		return nil, &Failure{
			Timeout: errors.Is(execCtx.Err(), context.DeadlineExceeded),
			Err:     execCtx.Err(),
		}
	}

	res := &RunResult{
		Artifacts: artifactsIn(outDir),
		Version:   sniffVersion(stdout.String()),
		Runtime:   elapsed,
	}
	res.ErrLog = readIfPresent(res.Artifacts.ErrLog)
	res.SizingLog = readIfPresent(res.Artifacts.SizingLog)

	if runErr != nil {
		e.log.Error("engine exited with error",
			zap.Error(runErr),
			zap.String("stderr", truncate(stderr.String(), 2048)))
		return res, &Failure{Err: runErr}
	}

	e.log.Info("engine finished",
		zap.Duration("runtime", elapsed),
		zap.String("version", res.Version))
	return res, nil
}

func artifactsIn(outDir string) Artifacts {
	return Artifacts{
		ResultsDB: filepath.Join(outDir, resultsDBName),
		Summary:   filepath.Join(outDir, summaryName),
		Table:     filepath.Join(outDir, tableName),
		ErrLog:    filepath.Join(outDir, errLogName),
		SizingLog: filepath.Join(outDir, sizingLogName),
	}
}

// sniffVersion pulls the engine version from its startup banner, e.g.
// "EnergyPlus, Version 9.4.0-998c4b761e".
func sniffVersion(stdout string) string {
	for line := range strings.Lines(stdout) {
		if _, after, ok := strings.Cut(line, "Version "); ok {
			return strings.TrimSpace(strings.Split(after, ",")[0])
		}
	}
	return "unknown"
}

func readIfPresent(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
