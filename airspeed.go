package ms4525do

import "math"

const (
	// seaLevelPressurePa is the standard atmosphere static pressure.
	seaLevelPressurePa = 101325.0
	// dryAirGasConstant is the specific gas constant for dry air, J/(kg·K).
	dryAirGasConstant = 287.05
)

// AirDensity returns the density of dry air in kg/m³ at the given
// temperature, from the ideal gas law at standard sea-level pressure.
func AirDensity(temperatureC float32) float32 {
	return seaLevelPressurePa / (dryAirGasConstant * (temperatureC + 273.15))
}

// Airspeed derives indicated airspeed in m/s from a pitot-tube differential
// pressure via Bernoulli: v = sqrt(2·ΔP/ρ). A negative differential reads as
// zero: a reversed or suction-side probe reports no flow rather than a
// fabricated positive speed.
func Airspeed(differentialPa, temperatureC float32) float32 {
	if differentialPa <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(2 * differentialPa / AirDensity(temperatureC))))
}
