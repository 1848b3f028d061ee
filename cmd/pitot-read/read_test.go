package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cojmeister/ms4525do"
)

// fakeSensor returns queued readings, then errors.
type fakeSensor struct {
	readings []ms4525do.Reading
	err      error
	calls    int
}

func (f *fakeSensor) ReadData(d ms4525do.Delay) (ms4525do.Reading, error) {
	f.calls++
	if len(f.readings) == 0 {
		return ms4525do.Reading{}, f.err
	}
	r := f.readings[0]
	f.readings = f.readings[1:]
	return r, nil
}

func TestRunReads_Human(t *testing.T) {
	sensor := &fakeSensor{readings: []ms4525do.Reading{
		{PressurePa: 100.0, TemperatureC: 15.0},
		{PressurePa: 100.0, TemperatureC: 15.0},
	}}

	var buf bytes.Buffer
	if err := runReads(&buf, sensor, 2, 0, "mps", false); err != nil {
		t.Fatalf("runReads failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "airspeed") {
		t.Errorf("expected line to start with 'airspeed', got %q", lines[0])
	}
	if !strings.Contains(lines[0], "100.00 Pa") {
		t.Errorf("expected line to show the pressure, got %q", lines[0])
	}
	if !strings.Contains(lines[0], "15.00 C") {
		t.Errorf("expected line to show the temperature, got %q", lines[0])
	}
}

func TestRunReads_JSON(t *testing.T) {
	sensor := &fakeSensor{readings: []ms4525do.Reading{
		{PressurePa: 100.0, TemperatureC: 15.0},
	}}

	var buf bytes.Buffer
	if err := runReads(&buf, sensor, 1, 0, "kph", true); err != nil {
		t.Fatalf("runReads failed: %v", err)
	}

	var m measurement
	if err := json.NewDecoder(&buf).Decode(&m); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}

	if m.PressurePa != 100.0 {
		t.Errorf("expected pressure 100.0, got %f", m.PressurePa)
	}
	if m.Units != "kph" {
		t.Errorf("expected units 'kph', got '%s'", m.Units)
	}

	// 100 Pa at 15 C works out to about 12.78 m/s.
	wantAirspeed := float64(ms4525do.Airspeed(100.0, 15.0)) * 3.6
	if math.Abs(m.Airspeed-wantAirspeed) > 0.01 {
		t.Errorf("expected airspeed %f kph, got %f", wantAirspeed, m.Airspeed)
	}
	if m.Time.IsZero() {
		t.Error("expected a timestamp on the measurement")
	}
}

// TestRunReads_StopsOnError covers count <= 0: the loop runs until a read
// fails and surfaces that error.
func TestRunReads_StopsOnError(t *testing.T) {
	readErr := errors.New("bus wedged")
	sensor := &fakeSensor{
		readings: []ms4525do.Reading{
			{PressurePa: 1.0},
			{PressurePa: 2.0},
		},
		err: readErr,
	}

	var buf bytes.Buffer
	err := runReads(&buf, sensor, 0, 0, "mps", false)
	if !errors.Is(err, readErr) {
		t.Fatalf("expected the read error, got %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 lines before the failure, got %d", lines)
	}
	if sensor.calls != 3 {
		t.Errorf("expected 3 read attempts, got %d", sensor.calls)
	}
}
