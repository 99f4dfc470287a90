// Package hvac repairs sizing fields the simulation engine rejects or
// mis-sizes: invalid coil ratings, under-specified variable-volume terminal
// minimums, and missing outdoor-air specifications.
package hvac

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"enerloop/internal/idf"
)

// Field layouts of the record classes this corrector touches.
const (
	coolingCoilType = "Coil:Cooling:DX:SingleSpeed"
	coilCapacityIdx = 2 // Gross Rated Total Cooling Capacity {W}
	coilSHRIdx      = 3 // Gross Rated Sensible Heat Ratio
	coilFlowIdx     = 5 // Rated Air Flow Rate {m3/s}

	vavTerminalType = "AirTerminal:SingleDuct:VAV:Reheat"
	vavMinMethodIdx = 5 // Zone Minimum Air Flow Input Method
	vavMinFracIdx   = 6 // Constant Minimum Air Flow Fraction
	vavMinSchedIdx  = 8 // Minimum Air Flow Fraction Schedule Name

	sizingZoneType  = "Sizing:Zone"
	sizingZoneOAIdx = 8 // Design Specification Outdoor Air Object Name

	oaSpecType      = "DesignSpecification:OutdoorAir"
	scheduleType    = "Schedule:Compact"
	schedLimitsType = "ScheduleTypeLimits"
	autosizeKeyword = "Autosize"
	defaultSHR      = "0.75"
)

// MinFlowScheduleName is the single shared schedule all corrected terminals
// bind to. Created once per model, reused on every later pass.
const MinFlowScheduleName = "Terminal Minimum Flow Fraction Schedule"

// generatedOAPrefix marks synthesized outdoor-air specs so regeneration can
// purge exactly what it created and nothing user-authored.
const generatedOAPrefix = "Auto OA "

// AutosizeCoil replaces invalid rating fields on a cooling coil with safe
// defaults: capacity and air flow become Autosize when absent or not a
// positive number, and a sensible-heat ratio outside (0,1] becomes 0.75.
// Reports whether anything changed. Re-applying is a no-op.
func AutosizeCoil(r *idf.Record) bool {
	changed := false
	for _, idx := range []int{coilCapacityIdx, coilFlowIdx} {
		if strings.EqualFold(r.Value(idx), autosizeKeyword) {
			continue
		}
		if v, ok := r.Float(idx); !ok || v <= 0 {
			r.SetValue(idx, autosizeKeyword)
			changed = true
		}
	}
	if shr, ok := r.Float(coilSHRIdx); !ok || shr <= 0 || shr > 1 {
		if r.Value(coilSHRIdx) != defaultSHR {
			r.SetValue(coilSHRIdx, defaultSHR)
			changed = true
		}
	}
	return changed
}

// AutosizeCoils applies AutosizeCoil to every cooling coil in the model.
func AutosizeCoils(m *idf.Model) int {
	fixed := 0
	for coil := range m.RecordsByType(coolingCoilType) {
		if AutosizeCoil(coil) {
			fixed++
		}
	}
	return fixed
}

// EnforceMinimumTerminalFlow forces every variable-volume terminal onto
// scheduled minimum-flow control: the constant minimum fraction is clamped
// to at least minFrac, and all terminals bind to one shared generated
// schedule holding designFrac. The schedule is created once and updated in
// place on later passes, so the corrector is idempotent.
func EnforceMinimumTerminalFlow(m *idf.Model, minFrac, designFrac float64) int {
	touched := 0
	for term := range m.RecordsByType(vavTerminalType) {
		changed := false
		if term.Value(vavMinMethodIdx) != "Scheduled" {
			term.SetValue(vavMinMethodIdx, "Scheduled")
			changed = true
		}
		switch frac, ok := term.Float(vavMinFracIdx); {
		case !ok || frac < minFrac:
			term.SetValue(vavMinFracIdx, formatFrac(minFrac))
			changed = true
		case frac > 1:
			term.SetValue(vavMinFracIdx, "1")
			changed = true
		}
		if term.Value(vavMinSchedIdx) != MinFlowScheduleName {
			term.SetValue(vavMinSchedIdx, MinFlowScheduleName)
			changed = true
		}
		if changed {
			touched++
		}
	}
	if touched > 0 || m.Find(scheduleType, MinFlowScheduleName) != nil {
		ensureMinFlowSchedule(m, designFrac)
	}
	return touched
}

// ensureMinFlowSchedule creates or updates the shared minimum-flow schedule.
func ensureMinFlowSchedule(m *idf.Model, designFrac float64) {
	if m.Find(schedLimitsType, "Fraction") == nil {
		lim := &idf.Record{Type: schedLimitsType}
		lim.SetValue(0, "Fraction")
		lim.SetValue(1, "0")
		lim.SetValue(2, "1")
		lim.SetValue(3, "Continuous")
		m.Append(lim)
	}
	sched := m.Find(scheduleType, MinFlowScheduleName)
	if sched == nil {
		sched = &idf.Record{Type: scheduleType}
		sched.SetValue(0, MinFlowScheduleName)
		sched.SetValue(1, "Fraction")
		sched.SetValue(2, "Through: 12/31")
		sched.SetValue(3, "For: AllDays")
		sched.SetValue(4, "Until: 24:00")
		m.Append(sched)
	}
	sched.SetValue(5, formatFrac(designFrac))
}

// GenerateOutdoorAirSpec synthesizes a DesignSpecification:OutdoorAir for
// every zone whose sizing record lacks a resolvable one, using fixed
// per-person and per-area ventilation rates. Previously generated specs are
// purged first and regenerated, keyed by zone name, so the pass is
// idempotent. Zones without a sizing record are skipped with a warning.
func GenerateOutdoorAirSpec(m *idf.Model, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}
	m.Remove(func(r *idf.Record) bool {
		return r.TypeIs(oaSpecType) && strings.HasPrefix(r.Name(), generatedOAPrefix)
	})

	generated := 0
	for zone := range m.RecordsByType("Zone") {
		sizing := findSizingZone(m, zone.Name())
		if sizing == nil {
			log.Warn("zone has no sizing record, cannot bind outdoor air spec",
				zap.String("zone", zone.Name()))
			continue
		}
		ref := sizing.Value(sizingZoneOAIdx)
		if ref != "" && m.Find(oaSpecType, ref) != nil &&
			!strings.HasPrefix(ref, generatedOAPrefix) {
			continue // user-authored spec resolves, leave it alone
		}
		name := generatedOAPrefix + zone.Name()
		if m.Find(oaSpecType, name) == nil {
			spec := &idf.Record{Type: oaSpecType}
			spec.SetValue(0, name)
			spec.SetComment(0, "Name")
			spec.SetValue(1, "Sum")
			spec.SetComment(1, "Outdoor Air Method")
			spec.SetValue(2, "0.00236")
			spec.SetComment(2, "Outdoor Air Flow per Person {m3/s-person}")
			spec.SetValue(3, "0.000305")
			spec.SetComment(3, "Outdoor Air Flow per Zone Floor Area {m3/s-m2}")
			m.Append(spec)
			generated++
		}
		sizing.SetValue(sizingZoneOAIdx, name)
	}
	return generated
}

func findSizingZone(m *idf.Model, zoneName string) *idf.Record {
	for s := range m.RecordsByType(sizingZoneType) {
		if s.Value(0) == zoneName {
			return s
		}
	}
	return nil
}

func formatFrac(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
