package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// sqlStrategy reads the engine's embedded SQLite database: run-period meter
// totals for the energy breakdown plus the tabular floor-area field. Highest
// fidelity source, tried first.
type sqlStrategy struct{}

func (sqlStrategy) Name() string { return "sql" }

func (sqlStrategy) Extract(ctx context.Context, a Artifacts) (*Result, error) {
	if a.SQLPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(a.SQLPath); err != nil {
		return nil, nil
	}
	db, err := sql.Open("sqlite", a.SQLPath)
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	defer db.Close()

	endUse, total, err := readMeterTotals(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(endUse) == 0 {
		return nil, nil
	}

	area, err := readFloorArea(ctx, db)
	if err != nil {
		return nil, err
	}
	if !plausibleArea(area) {
		return nil, nil
	}

	return &Result{
		TotalEnergyKWh: total,
		FloorAreaM2:    area,
		EndUseKWh:      endUse,
	}, nil
}

// readMeterTotals aggregates run-period meter values. Meter values are raw
// joules; the unit conversion to kWh happens here and nowhere else for this
// artifact.
func readMeterTotals(ctx context.Context, db *sql.DB) (map[string]float64, float64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT d.VariableName, SUM(m.VariableValue)
		FROM ReportMeterData m
		JOIN ReportMeterDataDictionary d
		  ON m.ReportMeterDataDictionaryIndex = d.ReportMeterDataDictionaryIndex
		WHERE d.ReportingFrequency = 'Run Period'
		GROUP BY d.VariableName`)
	if err != nil {
		return nil, 0, fmt.Errorf("query meter totals: %w", err)
	}
	defer rows.Close()

	endUse := map[string]float64{}
	total := 0.0
	for rows.Next() {
		var name string
		var joules float64
		if err := rows.Scan(&name, &joules); err != nil {
			return nil, 0, fmt.Errorf("scan meter row: %w", err)
		}
		kwh := joules / joulesPerKilowattHour
		endUse[name] = kwh
		total += kwh
	}
	return endUse, total, rows.Err()
}

// readFloorArea pulls the net conditioned building area from the tabular
// report tables (already m2, no conversion).
func readFloorArea(ctx context.Context, db *sql.DB) (float64, error) {
	var area float64
	err := db.QueryRowContext(ctx, `
		SELECT Value FROM TabularDataWithStrings
		WHERE RowName = 'Net Conditioned Building Area'
		  AND ColumnName = 'Area'
		LIMIT 1`).Scan(&area)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query floor area: %w", err)
	}
	return area, nil
}
