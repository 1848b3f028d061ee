package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kt", 10.0, KT, 19.4384},
		{"10 m/s to knots", 10.0, KNOTS, 19.4384},
		{"unknown units default to mps", 10.0, "unknown", 10.0},
		{"0 m/s to mph", 0.0, MPH, 0.0},
		{"approach speed 30 m/s to kt", 30.0, KT, 58.3153},        // ~58 kt
		{"cruise speed 55 m/s to kph", 55.0, KPH, 198.0},          // ~198 km/h
		{"stall speed 13.89 m/s to mph", 13.89, MPH, 31.071},      // ~31 mph
		{"rotation speed 25.72 m/s to knots", 25.72, KNOTS, 50.0}, // ~50 kt
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedMPS, tt.units)
			if math.Abs(result-tt.expected) > 0.01 { // Allow small floating point differences
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedMPS, tt.units, result, tt.expected)
			}
		})
	}
}

func TestConvertToMPS(t *testing.T) {
	tests := []struct {
		name     string
		speed    float64
		fromUnit string
		expected float64
	}{
		{"5 mps to mps", 5.0, MPS, 5.0},
		{"3.6 kph to mps", 3.6, KPH, 1.0},
		{"36 kmph to mps", 36.0, KMPH, 10.0},
		{"22.3694 mph to mps", 22.369362920544, MPH, 10.0},
		{"19.4384 kt to mps", 19.438444924406, KT, 10.0},
		{"19.4384 knots to mps", 19.438444924406, KNOTS, 10.0},
		{"unknown unit falls back to input", 5.0, "unknown", 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertToMPS(tt.speed, tt.fromUnit)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("ConvertToMPS(%f, %s) = %f, want %f", tt.speed, tt.fromUnit, result, tt.expected)
			}
		})
	}
}

// Test round-trip conversions
func TestRoundTripConversions(t *testing.T) {
	originalMPS := 15.5

	for _, unit := range ValidUnits {
		converted := ConvertSpeed(originalMPS, unit)
		backToMPS := ConvertToMPS(converted, unit)
		if math.Abs(backToMPS-originalMPS) > 1e-10 {
			t.Errorf("%s round-trip: started %f m/s, got %f m/s", unit, originalMPS, backToMPS)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mps", MPS, true},
		{"valid kph", KPH, true},
		{"valid kmph", KMPH, true},
		{"valid mph", MPH, true},
		{"valid kt", KT, true},
		{"valid knots", KNOTS, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "MPH", false},
		{"case sensitive", "Kt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	result := GetValidUnitsString()
	expected := "mps, kph, kmph, mph, kt, knots"
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}
