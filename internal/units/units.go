// Package units provides shared constants and validation for airspeed units
package units

// Unit constants
const (
	MPS   = "mps"
	KPH   = "kph"
	KMPH  = "kmph"
	MPH   = "mph"
	KT    = "kt"
	KNOTS = "knots"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, KPH, KMPH, MPH, KT, KNOTS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, kph, kmph, mph, kt, knots"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Readings are stored and sampled in m/s (meters per second).
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case KPH, KMPH:
		return speedMPS * 3.6 // m/s to km/h
	case MPH:
		return speedMPS * 2.2369362920544 // m/s to mph
	case KT, KNOTS:
		return speedMPS * 1.9438444924406 // m/s to knots
	default:
		return speedMPS // default to m/s if unknown unit
	}
}

// ConvertToMPS converts a speed in the given units back to meters per second.
func ConvertToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPS:
		return speed
	case KPH, KMPH:
		return speed / 3.6
	case MPH:
		return speed / 2.2369362920544
	case KT, KNOTS:
		return speed / 1.9438444924406
	default:
		return speed
	}
}
