package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cojmeister/ms4525do"
	"github.com/cojmeister/ms4525do/internal/units"
)

// sensorReader is the part of *ms4525do.Sensor this tool drives.
type sensorReader interface {
	ReadData(d ms4525do.Delay) (ms4525do.Reading, error)
}

// measurement is the JSON line format.
type measurement struct {
	Time         time.Time `json:"time"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	Airspeed     float64   `json:"airspeed"`
	Units        string    `json:"units"`
}

// runReads performs count measurements (count <= 0 means run until a read
// fails or the process is interrupted), writing one line per reading. The
// first failed read stops the loop.
func runReads(w io.Writer, sensor sensorReader, count int, every time.Duration, target string, asJSON bool) error {
	enc := json.NewEncoder(w)
	for i := 0; count <= 0 || i < count; i++ {
		if i > 0 {
			time.Sleep(every)
		}

		reading, err := sensor.ReadData(ms4525do.StdDelay)
		if err != nil {
			return err
		}

		m := measurement{
			Time:         time.Now().UTC(),
			PressurePa:   float64(reading.PressurePa),
			TemperatureC: float64(reading.TemperatureC),
			Airspeed: units.ConvertSpeed(
				float64(ms4525do.Airspeed(reading.PressurePa, reading.TemperatureC)), target),
			Units: target,
		}

		if asJSON {
			if err := enc.Encode(m); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "airspeed %7.2f %-5s  dp %8.2f Pa  temp %6.2f C\n",
			m.Airspeed, m.Units, m.PressurePa, m.TemperatureC); err != nil {
			return err
		}
	}
	return nil
}
