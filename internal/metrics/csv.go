package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// csvStrategy reads the delimited summary table the engine writes alongside
// the markup report: one "name [unit],value" row per figure. Lowest-fidelity
// structured source, tried last before the fallback.
type csvStrategy struct{}

func (csvStrategy) Name() string { return "csv" }

func (csvStrategy) Extract(_ context.Context, a Artifacts) (*Result, error) {
	if a.CSVPath == "" {
		return nil, nil
	}
	f, err := os.Open(a.CSVPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open summary table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // engine rows are ragged

	res := &Result{EndUseKWh: map[string]float64{}}
	haveTotal := false
	for {
		rec, err := r.Read()
		if err != nil {
			break // EOF or a malformed tail; use what was read
		}
		if len(rec) < 2 {
			continue
		}
		name := strings.TrimSpace(trimUnit(rec[0]))
		value, perr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if perr != nil {
			continue
		}
		switch {
		case name == "Total Site Energy":
			res.TotalEnergyKWh = value / joulesPerKilowattHour
			haveTotal = true
		case name == "Net Conditioned Building Area":
			res.FloorAreaM2 = value
		case endUseNames[name]:
			res.EndUseKWh[name] = value / joulesPerKilowattHour
		}
	}

	if !haveTotal || !plausibleArea(res.FloorAreaM2) {
		return nil, nil
	}
	if len(res.EndUseKWh) == 0 {
		res.EndUseKWh = nil
	}
	return res, nil
}

// trimUnit drops the trailing "[J]" style unit tag from a row name.
func trimUnit(s string) string {
	if i := strings.Index(s, "["); i >= 0 {
		return s[:i]
	}
	return s
}
