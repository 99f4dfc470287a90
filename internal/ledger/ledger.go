// Package ledger persists the outcome of every convergence-loop attempt as
// an append-only RunRecord history and answers "which run regressed least".
// Records are immutable once written; the only mutable state is the pointer
// to the current best run.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"enerloop/internal/diag"
	"enerloop/internal/metrics"
)

// RunRecord is the immutable snapshot of one pipeline run. ModelRevision
// hashes the exact prepared model text and EngineVersion names the exact
// toolchain, so any run can be reproduced.
type RunRecord struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	ModelRevision  string            `json:"model_revision"`
	EngineVersion  string            `json:"engine_version"`
	State          string            `json:"state"` // Converged or Failed
	Attempts       int               `json:"attempts"`
	DesignFraction float64           `json:"design_fraction"`
	Runtime        time.Duration     `json:"runtime"`
	Diagnostics    []diag.Diagnostic `json:"diagnostics"`
	Metrics        metrics.Result    `json:"metrics"`
}

// Failed reports whether the run ended in the terminal-failure state.
func (r *RunRecord) Failed() bool { return r.State == "Failed" }

// Ledger is the sole cross-run shared resource; appends are serialized so
// concurrent pipelines cannot lose updates.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

// Open initializes the ledger database at path, creating it as needed.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		model_revision TEXT NOT NULL,
		engine_version TEXT NOT NULL,
		state TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		design_fraction REAL NOT NULL,
		runtime_ms INTEGER NOT NULL,
		diagnostics TEXT NOT NULL,
		metrics TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS best_run (
		k INTEGER PRIMARY KEY CHECK (k = 1),
		run_id TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("initialize ledger schema: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// RecordRun appends one run to the history and refreshes the best-run
// pointer. The record is never updated afterwards. A missing ID or
// timestamp is filled in.
func (l *Ledger) RecordRun(ctx context.Context, rec *RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	diags, err := json.Marshal(rec.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	mets, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, model_revision, engine_version,
			state, attempts, design_fraction, runtime_ms, diagnostics, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.Format(time.RFC3339Nano), rec.ModelRevision,
		rec.EngineVersion, rec.State, rec.Attempts, rec.DesignFraction,
		rec.Runtime.Milliseconds(), string(diags), string(mets))
	if err != nil {
		return fmt.Errorf("append run record: %w", err)
	}

	return l.refreshBestLocked(ctx)
}

func (l *Ledger) refreshBestLocked(ctx context.Context) error {
	history, err := l.historyLocked(ctx)
	if err != nil {
		return err
	}
	best := SelectBest(history)
	if best == nil {
		return nil
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO best_run (k, run_id) VALUES (1, ?)
		ON CONFLICT (k) DO UPDATE SET run_id = excluded.run_id`, best.ID)
	if err != nil {
		return fmt.Errorf("update best pointer: %w", err)
	}
	return nil
}

// History returns every recorded run in append order.
func (l *Ledger) History(ctx context.Context) ([]RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.historyLocked(ctx)
}

func (l *Ledger) historyLocked(ctx context.Context) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, model_revision, engine_version, state,
			attempts, design_fraction, runtime_ms, diagnostics, metrics
		FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var created, diags, mets string
		var runtimeMs int64
		if err := rows.Scan(&rec.ID, &created, &rec.ModelRevision,
			&rec.EngineVersion, &rec.State, &rec.Attempts,
			&rec.DesignFraction, &runtimeMs, &diags, &mets); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		rec.Runtime = time.Duration(runtimeMs) * time.Millisecond
		if err := json.Unmarshal([]byte(diags), &rec.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics: %w", err)
		}
		if err := json.Unmarshal([]byte(mets), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Best returns the run the best pointer currently names, or nil.
func (l *Ledger) Best(ctx context.Context) (*RunRecord, error) {
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	return SelectBest(history), nil
}

// BestFocused is Best restricted to one defect class: only diagnostics whose
// message starts with focus count against a run. Used once Summarize shows a
// stable dominant diagnostic, so optimization targets one problem at a time.
func (l *Ledger) BestFocused(ctx context.Context, focus string) (*RunRecord, error) {
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	return selectBest(history, focus), nil
}

// SelectBest picks the least-regressed run: among non-Failed runs, the one
// with the fewest diagnostics, ties broken by fewer Fatal then fewer Severe,
// then by earlier recording. Nil when nothing succeeded.
func SelectBest(history []RunRecord) *RunRecord {
	return selectBest(history, "")
}

func selectBest(history []RunRecord, focus string) *RunRecord {
	var best *RunRecord
	var bestScore [3]int
	for i := range history {
		rec := &history[i]
		if rec.Failed() {
			continue
		}
		score := scoreRun(rec, focus)
		if best == nil || less(score, bestScore) {
			best = rec
			bestScore = score
		}
	}
	return best
}

// scoreRun orders runs lexicographically by (total, fatal, severe) counts
// over the diagnostics in scope.
func scoreRun(rec *RunRecord, focus string) [3]int {
	var s [3]int
	for _, d := range rec.Diagnostics {
		if focus != "" && !strings.HasPrefix(d.Message, focus) {
			continue
		}
		s[0]++
		switch d.Severity {
		case diag.Fatal:
			s[1]++
		case diag.Severe:
			s[2]++
		}
	}
	return s
}

func less(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
