// Package pipeline drives the correction-and-convergence loop: apply the
// deterministic correctors once, then run the engine, inspect its sizing
// output, raise the terminal design fraction when it falls short, and retry
// against a fresh copy of the prepared model until converged or out of
// attempts.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"enerloop/internal/diag"
	"enerloop/internal/engine"
	"enerloop/internal/geometry"
	"enerloop/internal/hvac"
	"enerloop/internal/idf"
	"enerloop/internal/ledger"
	"enerloop/internal/metrics"
	"enerloop/internal/weather"
)

// State of the convergence loop. Converged and Failed are terminal;
// Converged with diagnostics remaining is still a usable result.
type State string

const (
	StatePrepared        State = "Prepared"
	StateRunning         State = "Running"
	StateSizingEvaluated State = "Sizing-Evaluated"
	StateRetrying        State = "Retrying"
	StateConverged       State = "Converged"
	StateFailed          State = "Failed"
)

// Runner abstracts the engine subprocess so the loop can be exercised
// without one.
type Runner interface {
	Run(ctx context.Context, modelFile, climateFile, outDir string) (*engine.RunResult, error)
}

// Options tune the sizing-feedback loop. The design fraction is explicit
// attempt state here; it is never shared across models.
type Options struct {
	MaxAttempts           int     // total attempt cap, retries included
	Tolerance             float64 // required-vs-current slack before retrying
	SafetyMargin          float64 // multiplier applied to the required fraction
	MaxFraction           float64 // design fraction ceiling
	MinFraction           float64 // terminal minimum-flow floor
	InitialDesignFraction float64
	TargetFlowPerCapacity float64 // m3/s of air flow per W of coil capacity
}

// DefaultOptions returns the tuning observed to converge in practice.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:           2,
		Tolerance:             0.01,
		SafetyMargin:          1.1,
		MaxFraction:           0.9,
		MinFraction:           0.2,
		InitialDesignFraction: 0.3,
		TargetFlowPerCapacity: 0.00004,
	}
}

// Request is one model to push through the loop. WorkDir must be private to
// this request; the engine cannot share a directory across invocations.
type Request struct {
	Model       *idf.Model
	ClimateFile string
	WorkDir     string
}

// Outcome is the terminal result of the loop.
type Outcome struct {
	State          State
	Model          *idf.Model // last attempt's corrected model
	Diagnostics    []diag.Diagnostic
	Metrics        metrics.Result
	Attempts       int
	DesignFraction float64
	EngineVersion  string
	ModelRevision  string // hash of the prepared base snapshot
	Runtime        time.Duration
	FailureReason  string // set only when State is Failed
}

// Record converts the outcome into an immutable ledger entry.
func (o *Outcome) Record() *ledger.RunRecord {
	return &ledger.RunRecord{
		ModelRevision:  o.ModelRevision,
		EngineVersion:  o.EngineVersion,
		State:          string(o.State),
		Attempts:       o.Attempts,
		DesignFraction: o.DesignFraction,
		Runtime:        o.Runtime,
		Diagnostics:    o.Diagnostics,
		Metrics:        o.Metrics,
	}
}

// Controller runs the loop. Strictly sequential per model: each retry
// depends on the previous attempt's sizing output.
type Controller struct {
	runner Runner
	opts   Options
	log    *zap.Logger
}

// New returns a Controller over the given engine runner.
func New(runner Runner, opts Options, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{runner: runner, opts: opts, log: log}
}

// Run executes the full loop for one model. Engine crashes and timeouts end
// in a Failed outcome, not an error; the returned error is reserved for
// infrastructure problems such as an unwritable working directory.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	base := c.prepare(req)
	revision := revisionOf(base)
	c.log.Info("model prepared",
		zap.String("revision", revision),
		zap.String("workdir", req.WorkDir))

	out := &Outcome{
		State:          StatePrepared,
		DesignFraction: c.opts.InitialDesignFraction,
		ModelRevision:  revision,
	}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		out.Attempts = attempt

		// Retrying re-applies only the feedback corrector, always to a
		// fresh copy of the prepared base so corrections never compound.
		model := base.Clone()
		hvac.EnforceMinimumTerminalFlow(model, c.opts.MinFraction, out.DesignFraction)
		out.Model = model

		out.State = StateRunning
		res, err := c.runAttempt(ctx, model, req, attempt)
		out.Runtime += runtimeOf(res)
		if err != nil {
			var infra *infraError
			if errors.As(err, &infra) {
				return nil, infra.err
			}
			out.State = StateFailed
			out.FailureReason = err.Error()
			if res != nil {
				out.Diagnostics = diag.Classify(res.ErrLog)
				out.EngineVersion = res.Version
			}
			c.log.Error("attempt failed terminally",
				zap.Int("attempt", attempt), zap.Error(err))
			return out, nil
		}

		out.State = StateSizingEvaluated
		out.Diagnostics = diag.Classify(res.ErrLog)
		out.EngineVersion = res.Version

		required, ok := hvac.DeriveRequiredDesignFraction(res.SizingLog, c.opts.TargetFlowPerCapacity)
		if ok && required > out.DesignFraction+c.opts.Tolerance && attempt < c.opts.MaxAttempts {
			next := min(required*c.opts.SafetyMargin, c.opts.MaxFraction)
			c.log.Info("sizing requires larger design fraction, retrying",
				zap.Float64("required", required),
				zap.Float64("current", out.DesignFraction),
				zap.Float64("next", next))
			out.DesignFraction = next
			out.State = StateRetrying
			continue
		}

		out.State = StateConverged
		out.Metrics = metrics.Extract(ctx, metrics.Artifacts{
			SQLPath:  res.Artifacts.ResultsDB,
			HTMLPath: res.Artifacts.Summary,
			CSVPath:  res.Artifacts.Table,
		}, c.log)
		c.log.Info("converged",
			zap.Int("attempts", attempt),
			zap.Int("diagnostics", len(out.Diagnostics)),
			zap.String("metricSource", out.Metrics.Source))
		return out, nil
	}

	// Unreachable: the final attempt always converges or fails above.
	return out, nil
}

// prepare applies the deterministic correctors to a private copy of the
// input model. The feedback-dependent terminal corrector is excluded; it
// runs per attempt.
func (c *Controller) prepare(req Request) *idf.Model {
	base := req.Model.Clone()

	if loc, err := readClimateHeader(req.ClimateFile); err != nil {
		c.log.Warn("climate header unreadable, site left as declared", zap.Error(err))
	} else if weather.ReconcileSite(base, loc) {
		c.log.Info("site reconciled with climate file", zap.String("location", loc.Name))
	}

	geometry.FixFenestrationOrientation(base, c.log)
	geometry.FixFloorWinding(base)
	hvac.AutosizeCoils(base)
	hvac.GenerateOutdoorAirSpec(base, c.log)
	return base
}

// runAttempt writes the attempt's model into an isolated directory and
// blocks on the engine.
func (c *Controller) runAttempt(ctx context.Context, model *idf.Model, req Request, attempt int) (*engine.RunResult, error) {
	attemptDir := filepath.Join(req.WorkDir, fmt.Sprintf("attempt-%d", attempt))
	if err := os.MkdirAll(attemptDir, 0755); err != nil {
		return nil, &infraError{fmt.Errorf("create attempt dir: %w", err)}
	}
	modelPath := filepath.Join(attemptDir, "model.idf")
	if err := os.WriteFile(modelPath, []byte(model.Serialize()), 0644); err != nil {
		return nil, &infraError{fmt.Errorf("write model: %w", err)}
	}
	return c.runner.Run(ctx, modelPath, req.ClimateFile, filepath.Join(attemptDir, "out"))
}

// infraError separates unwritable-workdir style problems from engine
// failures, which are modeled as Failed outcomes.
type infraError struct{ err error }

func (e *infraError) Error() string { return e.err.Error() }
func (e *infraError) Unwrap() error { return e.err }

func readClimateHeader(path string) (weather.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return weather.Location{}, err
	}
	return weather.ParseHeader(string(data))
}

func revisionOf(m *idf.Model) string {
	sum := sha256.Sum256([]byte(m.Serialize()))
	return hex.EncodeToString(sum[:8])
}

func runtimeOf(res *engine.RunResult) time.Duration {
	if res == nil {
		return 0
	}
	return res.Runtime
}
