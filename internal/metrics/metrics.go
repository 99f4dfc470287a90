// Package metrics recovers energy and floor-area results from the engine's
// output artifacts. Several artifacts carry overlapping data at different
// fidelity; extraction walks an explicit ordered strategy list and the first
// strategy that produces a usable result wins.
package metrics

import (
	"context"

	"go.uber.org/zap"
)

// joulesPerKilowattHour converts the engine's native energy unit (joules) to
// the reporting unit. Applied exactly once, at the lowest-level read of each
// raw-joule artifact; values are kWh everywhere downstream.
const joulesPerKilowattHour = 3.6e6

// Floor areas outside this range are implausible for the building stock this
// pipeline handles and indicate a corrupt or partial report; the value is
// treated as absent and the next strategy is tried.
const (
	minPlausibleArea = 50.0
	maxPlausibleArea = 50000.0
)

// Artifacts locates the engine outputs a run produced. Empty paths and
// missing files are fine; strategies skip what they cannot read.
type Artifacts struct {
	SQLPath  string // structured embedded database (SQLite)
	HTMLPath string // formatted end-use summary report
	CSVPath  string // delimited summary table
}

// Result is the extracted per-run metric set.
type Result struct {
	TotalEnergyKWh   float64            `json:"total_energy_kwh"`
	FloorAreaM2      float64            `json:"floor_area_m2"`
	EndUseKWh        map[string]float64 `json:"end_use_kwh,omitempty"`
	Source           string             `json:"source"`
	ExtractionFailed bool               `json:"extraction_failed"`
}

// EUI returns energy use intensity (kWh/m2), derived once here at the
// boundary from the extracted totals, never from partial category sums.
func (r Result) EUI() float64 {
	if r.FloorAreaM2 <= 0 {
		return 0
	}
	return r.TotalEnergyKWh / r.FloorAreaM2
}

// Strategy reads one artifact kind. A nil Result with a nil error means the
// artifact is absent or does not carry the data; an error means it exists
// but could not be read. Both send the extractor to the next strategy.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, a Artifacts) (*Result, error)
}

// DefaultStrategies returns the fixed priority order: embedded database,
// formatted summary, delimited table.
func DefaultStrategies() []Strategy {
	return []Strategy{sqlStrategy{}, htmlStrategy{}, csvStrategy{}}
}

// Extract runs the strategies in order and returns the first success. When
// every strategy comes up empty it returns the flagged fallback value, which
// is never mistakable for a genuinely small building.
func Extract(ctx context.Context, a Artifacts, log *zap.Logger) Result {
	return ExtractWith(ctx, a, DefaultStrategies(), log)
}

// ExtractWith is Extract with an explicit strategy list.
func ExtractWith(ctx context.Context, a Artifacts, strategies []Strategy, log *zap.Logger) Result {
	if log == nil {
		log = zap.NewNop()
	}
	for _, s := range strategies {
		res, err := s.Extract(ctx, a)
		if err != nil {
			log.Warn("metric strategy failed, trying next",
				zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if res == nil {
			log.Debug("metric strategy had no data",
				zap.String("strategy", s.Name()))
			continue
		}
		res.Source = s.Name()
		return *res
	}
	log.Warn("all metric strategies failed, returning flagged fallback")
	return Result{Source: "fallback", ExtractionFailed: true}
}

// plausibleArea reports whether a floor area can be trusted.
func plausibleArea(a float64) bool {
	return a >= minPlausibleArea && a <= maxPlausibleArea
}
