// Package weather reads the climate file's location header and reconciles
// the model's declared site with it, so the engine does not simulate one
// city's building under another city's sky.
package weather

import (
	"fmt"
	"strconv"
	"strings"

	"enerloop/internal/idf"
)

// Location is the climate file's declared site: the first header line of an
// EPW document.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	TimeZone  float64 // hours from GMT
	Elevation float64 // meters
}

// ParseHeader reads the LOCATION line that opens a climate document:
//
//	LOCATION,Denver Centennial,CO,USA,TMY3,724666,39.74,-104.85,-7.0,1793.0
func ParseHeader(text string) (Location, error) {
	line, _, _ := strings.Cut(text, "\n")
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 10 || !strings.EqualFold(parts[0], "LOCATION") {
		return Location{}, fmt.Errorf("weather: malformed location header: %q", line)
	}
	nums := make([]float64, 4)
	for i, field := range parts[6:10] {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Location{}, fmt.Errorf("weather: location header field %d: %w", 6+i, err)
		}
		nums[i] = f
	}
	return Location{
		Name:      strings.TrimSpace(parts[1]),
		Latitude:  nums[0],
		Longitude: nums[1],
		TimeZone:  nums[2],
		Elevation: nums[3],
	}, nil
}

// Site:Location field layout.
const (
	siteType    = "Site:Location"
	siteLatIdx  = 1
	siteLonIdx  = 2
	siteTZIdx   = 3
	siteElevIdx = 4
)

// ReconcileSite rewrites the model's Site:Location to match the climate
// file, creating the record when the model has none. Returns true when the
// model changed.
func ReconcileSite(m *idf.Model, loc Location) bool {
	var site *idf.Record
	for r := range m.RecordsByType(siteType) {
		site = r
		break
	}
	if site == nil {
		site = &idf.Record{Type: siteType}
		site.SetValue(0, loc.Name)
		m.Append(site)
	}

	changed := false
	set := func(idx int, v float64) {
		s := strconv.FormatFloat(v, 'f', 2, 64)
		if site.Value(idx) != s {
			site.SetValue(idx, s)
			changed = true
		}
	}
	set(siteLatIdx, loc.Latitude)
	set(siteLonIdx, loc.Longitude)
	set(siteTZIdx, loc.TimeZone)
	set(siteElevIdx, loc.Elevation)
	return changed
}
