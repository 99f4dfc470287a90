package hvac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enerloop/internal/idf"
)

const hvacDoc = `Zone,
  Perimeter Zone,          !- Name
  0, 0, 0, 0, 1, 1,
  autocalculate,
  autocalculate,
  85.0;                    !- Floor Area

Sizing:Zone,
  Perimeter Zone,          !- Zone Name
  SupplyAirTemperature,    !- Cooling Design Method
  14.0,                    !- Cooling Design Supply Air Temperature
  SupplyAirTemperature,    !- Heating Design Method
  40.0,                    !- Heating Design Supply Air Temperature
  0.009,                   !- Cooling Design Humidity Ratio
  0.004,                   !- Heating Design Humidity Ratio
  ,                        !- Zone Air Distribution Name
  ;                        !- Design Specification Outdoor Air Object Name

Coil:Cooling:DX:SingleSpeed,
  Main Cooling Coil,       !- Name
  Always On,               !- Availability Schedule Name
  0,                       !- Gross Rated Total Cooling Capacity {W}
  1.3,                     !- Gross Rated Sensible Heat Ratio
  3.2,                     !- Gross Rated COP
  -1;                      !- Rated Air Flow Rate {m3/s}

AirTerminal:SingleDuct:VAV:Reheat,
  Perimeter VAV,           !- Name
  Always On,               !- Availability Schedule Name
  Damper Outlet,           !- Damper Air Outlet Node Name
  VAV Inlet,               !- Air Inlet Node Name
  Autosize,                !- Maximum Air Flow Rate {m3/s}
  Constant,                !- Zone Minimum Air Flow Input Method
  0.05,                    !- Constant Minimum Air Flow Fraction
  ,                        !- Fixed Minimum Air Flow Rate {m3/s}
  ;                        !- Minimum Air Flow Fraction Schedule Name
`

func parseDoc(t *testing.T) *idf.Model {
	t.Helper()
	m, err := idf.Parse(hvacDoc)
	require.NoError(t, err)
	return m
}

func TestAutosizeCoil(t *testing.T) {
	m := parseDoc(t)
	coil := m.Find("Coil:Cooling:DX:SingleSpeed", "Main Cooling Coil")

	require.True(t, AutosizeCoil(coil))
	assert.Equal(t, "Autosize", coil.Value(coilCapacityIdx))
	assert.Equal(t, "Autosize", coil.Value(coilFlowIdx))
	assert.Equal(t, "0.75", coil.Value(coilSHRIdx))

	// Idempotent: second application changes nothing.
	assert.False(t, AutosizeCoil(coil))
}

func TestAutosizeCoil_ValidFieldsUntouched(t *testing.T) {
	r := &idf.Record{Type: "Coil:Cooling:DX:SingleSpeed"}
	r.SetValue(0, "Good Coil")
	r.SetValue(coilCapacityIdx, "25000")
	r.SetValue(coilSHRIdx, "0.78")
	r.SetValue(coilFlowIdx, "1.2")

	assert.False(t, AutosizeCoil(r))
	assert.Equal(t, "25000", r.Value(coilCapacityIdx))
	assert.Equal(t, "0.78", r.Value(coilSHRIdx))
}

func TestEnforceMinimumTerminalFlow(t *testing.T) {
	m := parseDoc(t)

	assert.Equal(t, 1, EnforceMinimumTerminalFlow(m, 0.3, 0.3))

	term := m.Find("AirTerminal:SingleDuct:VAV:Reheat", "Perimeter VAV")
	assert.Equal(t, "Scheduled", term.Value(vavMinMethodIdx))
	assert.Equal(t, "0.3", term.Value(vavMinFracIdx))
	assert.Equal(t, MinFlowScheduleName, term.Value(vavMinSchedIdx))

	sched := m.Find("Schedule:Compact", MinFlowScheduleName)
	require.NotNil(t, sched)
	assert.Equal(t, "0.3", sched.Value(5))

	// Idempotent: re-run creates no second schedule and touches no terminal.
	assert.Equal(t, 0, EnforceMinimumTerminalFlow(m, 0.3, 0.3))
	count := 0
	for range m.RecordsByType("Schedule:Compact") {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestEnforceMinimumTerminalFlow_UpdatesSharedSchedule(t *testing.T) {
	m := parseDoc(t)
	EnforceMinimumTerminalFlow(m, 0.3, 0.3)
	EnforceMinimumTerminalFlow(m, 0.3, 0.55)

	sched := m.Find("Schedule:Compact", MinFlowScheduleName)
	require.NotNil(t, sched)
	assert.Equal(t, "0.55", sched.Value(5))
}

func TestGenerateOutdoorAirSpec(t *testing.T) {
	m := parseDoc(t)

	assert.Equal(t, 1, GenerateOutdoorAirSpec(m, nil))

	spec := m.Find("DesignSpecification:OutdoorAir", "Auto OA Perimeter Zone")
	require.NotNil(t, spec)
	assert.Equal(t, "Sum", spec.Value(1))

	sizing := findSizingZone(m, "Perimeter Zone")
	assert.Equal(t, "Auto OA Perimeter Zone", sizing.Value(sizingZoneOAIdx))

	// Idempotent: regeneration purges and recreates, never duplicates.
	assert.Equal(t, 1, GenerateOutdoorAirSpec(m, nil))
	count := 0
	for range m.RecordsByType("DesignSpecification:OutdoorAir") {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestGenerateOutdoorAirSpec_RespectsUserSpec(t *testing.T) {
	m := parseDoc(t)
	user := &idf.Record{Type: "DesignSpecification:OutdoorAir"}
	user.SetValue(0, "Office OA")
	m.Append(user)
	findSizingZone(m, "Perimeter Zone").SetValue(sizingZoneOAIdx, "Office OA")

	assert.Equal(t, 0, GenerateOutdoorAirSpec(m, nil))
	assert.Equal(t, "Office OA", findSizingZone(m, "Perimeter Zone").Value(sizingZoneOAIdx))
}

func TestGenerateOutdoorAirSpec_UnresolvedReferenceRebound(t *testing.T) {
	// A sizing record pointing at a spec that does not exist must not crash
	// the pass; the dangling name is replaced with a generated spec.
	m := parseDoc(t)
	findSizingZone(m, "Perimeter Zone").SetValue(sizingZoneOAIdx, "Ghost Spec")

	assert.Equal(t, 1, GenerateOutdoorAirSpec(m, nil))
	assert.Equal(t, "Auto OA Perimeter Zone", findSizingZone(m, "Perimeter Zone").Value(sizingZoneOAIdx))
}

const sizingLog = ` Component Sizing Information, Coil:Cooling:DX:SingleSpeed, MAIN COOLING COIL, Design Size Rated Air Flow Rate [m3/s], 1.33
 Component Sizing Information, Coil:Cooling:DX:SingleSpeed, MAIN COOLING COIL, Design Size Gross Rated Total Cooling Capacity [W], 28034.2
 Component Sizing Information, Fan:VariableVolume, SUPPLY FAN, Design Size Maximum Air Flow Rate [m3/s], 1.40
 Component Sizing Information, Coil:Heating:Fuel, HEATING COIL, Design Size Nominal Capacity [W], 18000
 some unrelated line
`

func TestParseSizingLog(t *testing.T) {
	res := ParseSizingLog(sizingLog)
	require.Contains(t, res, "Coil:Cooling:DX:SingleSpeed, MAIN COOLING COIL")

	e := res["Coil:Cooling:DX:SingleSpeed, MAIN COOLING COIL"]
	assert.Equal(t, 1.33, e.Flow)
	assert.Equal(t, 28034.2, e.Capacity)

	fan := res["Fan:VariableVolume, SUPPLY FAN"]
	assert.Equal(t, 1.40, fan.Flow)
	assert.Zero(t, fan.Capacity)
}

func TestDeriveRequiredDesignFraction(t *testing.T) {
	t.Run("max over complete coil pairs", func(t *testing.T) {
		frac, ok := DeriveRequiredDesignFraction(sizingLog, 0.00004)
		require.True(t, ok)
		// Only the cooling coil has both flow and capacity; the fuel coil
		// has no flow and the fan is not a coil.
		assert.InDelta(t, 0.00004*28034.2/1.33, frac, 1e-9)
	})

	t.Run("no pairs yields absent", func(t *testing.T) {
		_, ok := DeriveRequiredDesignFraction("nothing here", 0.00004)
		assert.False(t, ok)
	})
}

func TestCorrectorsPreserveUntouchedText(t *testing.T) {
	m := parseDoc(t)
	AutosizeCoils(m)
	out := m.Serialize()
	// The zone record was never touched and must survive byte-identical.
	assert.True(t, strings.Contains(out, "  Perimeter Zone,          !- Name"))
}
