package metrics

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// htmlStrategy scans the engine's markup summary report. The report is a
// fixed table layout, so a cell scan is all that is needed; energy cells
// hold raw joules like every other engine artifact.
type htmlStrategy struct{}

func (htmlStrategy) Name() string { return "html" }

var (
	rowPattern  = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellPattern = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
)

// endUseNames is the engine's fixed end-use vocabulary; only these rows are
// meter categories, everything else in the report is ignored.
var endUseNames = map[string]bool{
	"Heating":            true,
	"Cooling":            true,
	"Interior Lighting":  true,
	"Exterior Lighting":  true,
	"Interior Equipment": true,
	"Exterior Equipment": true,
	"Fans":               true,
	"Pumps":              true,
	"Heat Rejection":     true,
	"Water Systems":      true,
	"Refrigeration":      true,
}

func (htmlStrategy) Extract(_ context.Context, a Artifacts) (*Result, error) {
	if a.HTMLPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.HTMLPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read summary report: %w", err)
	}

	res := &Result{EndUseKWh: map[string]float64{}}
	haveTotal := false
	for _, row := range rowPattern.FindAllStringSubmatch(string(data), -1) {
		cells := cellPattern.FindAllStringSubmatch(row[1], -1)
		if len(cells) < 2 {
			continue
		}
		name := strings.TrimSpace(stripTags(cells[0][1]))
		value, err := strconv.ParseFloat(strings.TrimSpace(stripTags(cells[1][1])), 64)
		if err != nil {
			continue
		}
		switch {
		case name == "Total Site Energy":
			res.TotalEnergyKWh = value / joulesPerKilowattHour
			haveTotal = true
		case name == "Net Conditioned Building Area":
			res.FloorAreaM2 = value // already m2
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

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}
