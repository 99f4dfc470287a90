package hvac

import (
	"strconv"
	"strings"
)

// SizingEntry holds the engine-computed design values for one component.
type SizingEntry struct {
	Flow     float64 // design air flow rate, m3/s
	Capacity float64 // design capacity, W
}

// SizingResult maps "ComponentType, Component Name" to its sizing values,
// as reported by one engine run. Ephemeral: rebuilt from the sizing log on
// every attempt.
type SizingResult map[string]SizingEntry

const sizingMarker = "Component Sizing Information"

// ParseSizingLog extracts component flow/capacity pairs from the engine's
// sizing log. Lines look like:
//
//	Component Sizing Information, Coil:Cooling:DX:SingleSpeed, MAIN COIL, Design Size Rated Air Flow Rate [m3/s], 1.33
//
// Unrecognized lines and non-numeric values are ignored.
func ParseSizingLog(text string) SizingResult {
	out := SizingResult{}
	for line := range strings.Lines(text) {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 5 || !strings.Contains(parts[0], sizingMarker) {
			continue
		}
		compType := strings.TrimSpace(parts[1])
		name := strings.TrimSpace(parts[2])
		desc := strings.TrimSpace(parts[3])
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			continue
		}
		key := compType + ", " + name
		entry := out[key]
		switch {
		case strings.Contains(desc, "Air Flow Rate"):
			entry.Flow = value
		case strings.Contains(desc, "Capacity"):
			entry.Capacity = value
		default:
			continue
		}
		out[key] = entry
	}
	return out
}

// DeriveRequiredDesignFraction returns the minimum-flow fraction the model's
// coils need so that every coil sees at least targetRatio flow per unit
// capacity (m3/s per W): the max over coils of targetRatio*capacity/flow.
// False when the log yields no complete coil flow/capacity pair.
func DeriveRequiredDesignFraction(sizingLog string, targetRatio float64) (float64, bool) {
	required := 0.0
	found := false
	for key, e := range ParseSizingLog(sizingLog) {
		if !strings.HasPrefix(key, "Coil:") || e.Flow <= 0 || e.Capacity <= 0 {
			continue
		}
		frac := targetRatio * e.Capacity / e.Flow
		if frac > required {
			required = frac
		}
		found = true
	}
	return required, found
}
