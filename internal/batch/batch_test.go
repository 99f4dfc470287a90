package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enerloop/internal/engine"
	"enerloop/internal/ledger"
	"enerloop/internal/pipeline"
)

// countingRunner succeeds every run and records the output directories it
// was handed.
type countingRunner struct {
	mu      sync.Mutex
	outDirs []string
}

func (r *countingRunner) Run(_ context.Context, _, _, outDir string) (*engine.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outDirs = append(r.outDirs, outDir)
	return &engine.RunResult{Version: "9.4.0"}, nil
}

const tinyModel = "Zone,Solo Zone,0,0,0,0,1,1,autocalculate,autocalculate,100.0;\n"

func writeJob(t *testing.T, dir, name, content string) Job {
	t.Helper()
	modelPath := filepath.Join(dir, name+".idf")
	require.NoError(t, os.WriteFile(modelPath, []byte(content), 0644))
	climatePath := filepath.Join(dir, name+".epw")
	require.NoError(t, os.WriteFile(climatePath,
		[]byte("LOCATION,Testville,TS,USA,TMY3,000000,40.0,-105.0,-7.0,1600.0\n"), 0644))
	return Job{Name: name, ModelFile: modelPath, ClimateFile: climatePath}
}

func TestProcess_ConcurrentJobsIsolatedAndRecorded(t *testing.T) {
	dir := t.TempDir()
	jobs := []Job{
		writeJob(t, dir, "office-a", tinyModel),
		writeJob(t, dir, "office-b", tinyModel),
		writeJob(t, dir, "office-c", tinyModel),
	}

	l, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	runner := &countingRunner{}
	ctrl := pipeline.New(runner, pipeline.DefaultOptions(), nil)
	p := NewProcessor(ctrl, l, filepath.Join(dir, "work"), 3, nil)

	results := p.Process(context.Background(), jobs)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, jobs[i].Name, res.Job.Name, "results keep job order")
		require.NoError(t, res.Err)
		assert.Equal(t, pipeline.StateConverged, res.Outcome.State)
	}

	// Every invocation got its own working directory.
	seen := map[string]bool{}
	for _, d := range runner.outDirs {
		assert.False(t, seen[d], "output dir %s reused", d)
		seen[d] = true
	}

	history, err := l.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestProcess_OneBadJobDoesNotCancelSiblings(t *testing.T) {
	dir := t.TempDir()
	jobs := []Job{
		writeJob(t, dir, "broken", "Zone,\n  Unterminated,\n"),
		writeJob(t, dir, "fine", tinyModel),
	}

	runner := &countingRunner{}
	ctrl := pipeline.New(runner, pipeline.DefaultOptions(), nil)
	p := NewProcessor(ctrl, nil, filepath.Join(dir, "work"), 2, nil)

	results := p.Process(context.Background(), jobs)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, pipeline.StateConverged, results[1].Outcome.State)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b-c_1", sanitize("a b-c/1"))
	assert.Equal(t, "job", sanitize(""))
}
