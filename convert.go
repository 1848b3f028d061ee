package ms4525do

// psiToPa converts pounds per square inch to pascals.
const psiToPa = 6894.76

// pressurePascals maps a raw bridge count linearly onto the sensor's signed
// full-scale range: count 0 is -fullScalePSI, count 16383 is +fullScalePSI.
// The result is in pascals.
func pressurePascals(count uint16, fullScalePSI float32) float32 {
	span := float32(count)/maxPressureCount*2 - 1
	return span * fullScalePSI * psiToPa
}

// temperatureCelsius converts a raw 11-bit temperature count to degrees
// Celsius. The count spans -50..+150 degC per the datasheet transfer function.
func temperatureCelsius(count uint16) float32 {
	return 200.0*float32(count)/maxTemperatureCount - 50.0
}
