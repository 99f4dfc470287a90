// Package batch pushes independent models through the pipeline
// concurrently. Each job gets its own isolated working directory; the
// ledger is the only shared resource and serializes its own appends.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"enerloop/internal/idf"
	"enerloop/internal/ledger"
	"enerloop/internal/pipeline"
)

// Job names one model to simulate.
type Job struct {
	Name        string
	ModelFile   string
	ClimateFile string
}

// JobResult pairs a job with its outcome. Err covers job-level problems
// (unreadable model, unwritable workdir); engine failures surface as a
// Failed outcome instead.
type JobResult struct {
	Job     Job
	Outcome *pipeline.Outcome
	Err     error
}

// Processor fans jobs out over a bounded worker pool.
type Processor struct {
	controller  *pipeline.Controller
	ledger      *ledger.Ledger // may be nil: results are not persisted
	workRoot    string
	concurrency int
	log         *zap.Logger
}

// NewProcessor builds a Processor. concurrency <= 0 means one job at a time.
func NewProcessor(c *pipeline.Controller, l *ledger.Ledger, workRoot string, concurrency int, log *zap.Logger) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		controller:  c,
		ledger:      l,
		workRoot:    workRoot,
		concurrency: concurrency,
		log:         log,
	}
}

// Process runs every job and returns results in job order. One job's
// failure never cancels its siblings; only context cancellation stops the
// batch early.
func (p *Processor) Process(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = p.runJob(ctx, job, i)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in results
	return results
}

func (p *Processor) runJob(ctx context.Context, job Job, index int) JobResult {
	out := JobResult{Job: job}

	data, err := os.ReadFile(job.ModelFile)
	if err != nil {
		out.Err = fmt.Errorf("read model: %w", err)
		return out
	}
	model, err := idf.Parse(string(data))
	if err != nil {
		out.Err = fmt.Errorf("parse model: %w", err)
		return out
	}

	workDir := filepath.Join(p.workRoot, fmt.Sprintf("%s-%d", sanitize(job.Name), index))
	outcome, err := p.controller.Run(ctx, pipeline.Request{
		Model:       model,
		ClimateFile: job.ClimateFile,
		WorkDir:     workDir,
	})
	if err != nil {
		out.Err = err
		return out
	}
	out.Outcome = outcome

	if p.ledger != nil {
		if err := p.ledger.RecordRun(ctx, outcome.Record()); err != nil {
			p.log.Error("failed to record run", zap.String("job", job.Name), zap.Error(err))
			out.Err = err
		}
	}
	return out
}

// sanitize keeps job names filesystem-safe.
func sanitize(name string) string {
	if name == "" {
		return "job"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
