// Package ms4525do implements a driver for the TE Connectivity MS4525DO
// digital differential-pressure and temperature sensor, the part behind most
// hobby-scale pitot-static airspeed probes.
//
// The sensor frames carry no CRC. Integrity comes from reading each
// conversion twice: the first read must report normal status, the second must
// report stale with identical counts, otherwise the pair is rejected. The
// driver performs exactly one measurement per call and never retries; retry
// policy belongs to the caller.
//
// ReadData blocks on a caller-supplied Delay during the conversion wait.
// ReadDataContext waits on the context instead, so a sampling loop can be
// cancelled mid-conversion. Both run the same validation sequence.
package ms4525do

import (
	"context"
	"time"
)

const (
	// DefaultAddress is the sensor's 7-bit I2C address ("I" interface type).
	DefaultAddress = 0x28

	// DefaultFullScalePSI matches the ±1 psi 001PD variant.
	DefaultFullScalePSI = 1.0

	// ConversionWait is the minimum time between the measurement request and
	// the first read for fresh data to be available.
	ConversionWait = 2 * time.Millisecond

	// readMR is the measurement request command.
	readMR = 0x00
)

// Transport moves bytes to and from a device address. One call is one bus
// transaction; serialization across sensors sharing the bus is the
// transport's concern, not the driver's.
type Transport interface {
	Write(addr byte, p []byte) error
	Read(addr byte, p []byte) error
}

// Delay blocks the caller for at least d. timeutil clocks satisfy it, as
// does StdDelay for callers without a clock to inject.
type Delay interface {
	Sleep(d time.Duration)
}

type stdDelay struct{}

func (stdDelay) Sleep(d time.Duration) { time.Sleep(d) }

// StdDelay is a Delay backed by time.Sleep.
var StdDelay Delay = stdDelay{}

// Sensor is a handle to one MS4525DO on a Transport. It holds configuration
// only; all I/O state lives in the transport.
type Sensor struct {
	bus          Transport
	addr         byte
	fullScalePSI float32
	logf         func(format string, v ...interface{})
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithAddress overrides the 7-bit device address for non-"I" interface
// variants.
func WithAddress(addr byte) Option {
	return func(s *Sensor) { s.addr = addr }
}

// WithFullScale sets the sensor's rated differential range in psi (the
// variant code: 1.0 for 001PD, 5.0 for 005PD, and so on).
func WithFullScale(psi float32) Option {
	return func(s *Sensor) { s.fullScalePSI = psi }
}

// WithLogf installs a diagnostics sink for decode failures, faults and
// mismatch details. The default discards everything.
func WithLogf(logf func(format string, v ...interface{})) Option {
	return func(s *Sensor) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// New returns a Sensor on bus with the default address and ±1 psi range.
func New(bus Transport, opts ...Option) *Sensor {
	s := &Sensor{
		bus:          bus,
		addr:         DefaultAddress,
		fullScalePSI: DefaultFullScalePSI,
		logf:         func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the configured 7-bit device address.
func (s *Sensor) Address() byte { return s.addr }

// Reading is one validated measurement.
type Reading struct {
	// PressurePa is the differential pressure in pascals, signed: positive
	// when the high port sees more pressure than the low port.
	PressurePa float32

	// TemperatureC is the die temperature in degrees Celsius.
	TemperatureC float32
}

// ReadData requests a measurement and returns the validated reading,
// sleeping on d for the conversion wait. It performs one write and up to two
// reads; any failure surfaces as one of the package error kinds.
func (s *Sensor) ReadData(d Delay) (Reading, error) {
	return s.readFrames(func() error {
		d.Sleep(ConversionWait)
		return nil
	})
}

// ReadDataContext is ReadData with the conversion wait parked on a timer
// select, so cancellation aborts the measurement between the request and the
// first read. A cancelled context returns ctx.Err().
func (s *Sensor) ReadDataContext(ctx context.Context) (Reading, error) {
	return s.readFrames(func() error {
		t := time.NewTimer(ConversionWait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	})
}

// readFrames runs the measurement protocol: request, wait, double read,
// validate. wait is the only step that differs between the blocking and
// context entry points.
func (s *Sensor) readFrames(wait func() error) (Reading, error) {
	if err := s.bus.Write(s.addr, []byte{readMR}); err != nil {
		return Reading{}, &TransportError{Op: "write measurement request", Err: err}
	}

	if err := wait(); err != nil {
		return Reading{}, err
	}

	var first Frame
	if err := s.bus.Read(s.addr, first[:]); err != nil {
		return Reading{}, &TransportError{Op: "read first frame", Err: err}
	}
	switch st := first.Status(); st {
	case StatusNormal:
	case StatusFault:
		s.logf("ms4525do: fault flagged on first read (% X)", first[:])
		return Reading{}, ErrFaultDetected
	default:
		// No second read: the sensor answered, but not with fresh data. The
		// caller decides whether to try again.
		s.logf("ms4525do: first read status %s, want normal", st)
		return Reading{}, &InvalidStatusError{Status: st}
	}

	var second Frame
	if err := s.bus.Read(s.addr, second[:]); err != nil {
		return Reading{}, &TransportError{Op: "read second frame", Err: err}
	}
	switch st := second.Status(); st {
	case StatusStale:
	case StatusFault:
		s.logf("ms4525do: fault flagged on second read (% X)", second[:])
		return Reading{}, ErrFaultDetected
	default:
		// A normal second read means another conversion landed between the
		// two reads; the pair cannot be trusted as a consistency check.
		s.logf("ms4525do: second read status %s, want stale", st)
		return Reading{}, ErrStaleDataMismatch
	}

	if first.PressureCount() != second.PressureCount() ||
		first.TemperatureCount() != second.TemperatureCount() {
		s.logf("ms4525do: double read mismatch: pressure %d != %d, temperature %d != %d",
			first.PressureCount(), second.PressureCount(),
			first.TemperatureCount(), second.TemperatureCount())
		return Reading{}, ErrStaleDataMismatch
	}

	return Reading{
		PressurePa:   pressurePascals(first.PressureCount(), s.fullScalePSI),
		TemperatureC: temperatureCelsius(first.TemperatureCount()),
	}, nil
}
