// Command pitot-read takes measurements from an MS4525DO at the command
// line: a bench check that probe, wiring and address are right before
// committing to a pitotd run.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/cojmeister/ms4525do"
	"github.com/cojmeister/ms4525do/internal/config"
	"github.com/cojmeister/ms4525do/internal/i2cmux"
	"github.com/cojmeister/ms4525do/internal/units"
)

var (
	transport  = flag.String("transport", config.TransportDevfs, "Sensor transport: devfs, usbiss or sim")
	i2cDevice  = flag.String("i2c-device", "/dev/i2c-1", "I2C device node for the devfs transport")
	serialPort = flag.String("serial-port", "/dev/ttyACM0", "Serial port for the usbiss transport")
	addr       = flag.Int("addr", ms4525do.DefaultAddress, "7-bit sensor address")
	fullScale  = flag.Float64("full-scale", ms4525do.DefaultFullScalePSI, "Sensor full scale in psi")
	unitsFlag  = flag.String("units", units.MPS, "Display units for airspeed")
	count      = flag.Int("n", 1, "Number of measurements (0 means run until interrupted)")
	every      = flag.Duration("every", 500*time.Millisecond, "Pause between measurements")
	asJSON     = flag.Bool("json", false, "Emit one JSON object per line")
)

func main() {
	flag.Parse()

	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q; valid units are: %s", *unitsFlag, units.GetValidUnitsString())
	}
	if *addr < 0x08 || *addr > 0x77 {
		log.Fatalf("sensor address %#02x outside the valid 7-bit range 0x08-0x77", *addr)
	}

	var device i2cmux.Device
	var err error
	switch *transport {
	case config.TransportSim:
		device = i2cmux.NewSimDevice()
	case config.TransportUSBISS:
		device, err = i2cmux.OpenUSBISS(*serialPort)
	case config.TransportDevfs:
		device, err = i2cmux.OpenDevfs(*i2cDevice)
	default:
		log.Fatalf("unknown transport %q (valid: devfs, usbiss, sim)", *transport)
	}
	if err != nil {
		log.Fatalf("failed to open %s transport: %v", *transport, err)
	}

	bus := i2cmux.NewMux(device)
	defer bus.Close()

	sensor := ms4525do.New(bus,
		ms4525do.WithAddress(byte(*addr)),
		ms4525do.WithFullScale(float32(*fullScale)),
		ms4525do.WithLogf(log.Printf),
	)

	if err := runReads(os.Stdout, sensor, *count, *every, *unitsFlag, *asJSON); err != nil {
		log.Fatalf("read failed: %v", err)
	}
}
