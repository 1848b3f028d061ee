package i2cmux

import (
	"bytes"
	"errors"
	"math"
	"sync"
)

// Status bits for simulated sensor frames, already shifted into the top two
// bits of the first byte.
const (
	simStatusNormal = 0x00
	simStatusStale  = 0x80
)

const (
	simMidpointCount   = 8192 // zero differential pressure
	simAmplitudeCounts = 820  // about a tenth of full scale
	simPeriodWrites    = 240
	simTemperatureC    = 22.0
)

// SimDevice emulates an MS4525DO pressure sensor wired to its own bus. A
// measurement request arms a fresh conversion; the first read after it
// reports normal status and later reads report stale, matching the part's
// no-CRC freshness scheme. Pressure follows a slow sine around the zero
// midpoint and temperature sits near room temperature, so dashboards fed
// from a simulated sensor show plausible movement.
type SimDevice struct {
	mu sync.Mutex

	addr             int
	step             int
	pressureCount    uint16
	temperatureCount uint16
	fresh            bool

	// WriteCalls records the number of Write calls.
	WriteCalls int

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// Closed indicates whether Close was called.
	Closed bool
}

// NewSimDevice creates a SimDevice holding one stale conversion, as a real
// part would after power-up.
func NewSimDevice() *SimDevice {
	s := &SimDevice{}
	s.convert()
	return s
}

// convert computes the next conversion result. Callers hold s.mu (or are
// the constructor).
func (s *SimDevice) convert() {
	phase := 2 * math.Pi * float64(s.step) / simPeriodWrites
	s.pressureCount = uint16(simMidpointCount + math.Round(simAmplitudeCounts*math.Sin(phase)))
	s.temperatureCount = uint16(math.Round((simTemperatureC + 50) / 200 * 2047))
}

func (s *SimDevice) SetAddress(address int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addr = address
	return nil
}

// Address returns the most recent address selected with SetAddress.
func (s *SimDevice) Address() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Write treats any write as a measurement request and arms a fresh
// conversion.
func (s *SimDevice) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return 0, errors.New("sim device closed")
	}
	s.WriteCalls++
	s.step++
	s.convert()
	s.fresh = true
	return len(p), nil
}

// Read serves the current conversion as a 4-byte frame, truncated if the
// caller clocks fewer bytes.
func (s *SimDevice) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return 0, errors.New("sim device closed")
	}
	s.ReadCalls++
	status := byte(simStatusStale)
	if s.fresh {
		status = simStatusNormal
		s.fresh = false
	}
	frame := simFrame(status, s.pressureCount, s.temperatureCount)
	return copy(p, frame[:]), nil
}

func (s *SimDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// simFrame packs counts into the sensor's wire layout: status in the top
// two bits, a 14-bit pressure bridge count, an 11-bit temperature count
// left-aligned across the last two bytes.
func simFrame(status byte, pressure, temperature uint16) [4]byte {
	return [4]byte{
		status | byte(pressure>>8)&0x3F,
		byte(pressure),
		byte(temperature >> 3),
		byte(temperature&0x07) << 5,
	}
}

// TestableDevice implements Device with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and the
// addresses a driver selects.
type TestableDevice struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the device
	WriteBuffer *bytes.Buffer

	// Addresses records every address passed to SetAddress
	Addresses []int

	// SetAddressError is returned by the next SetAddress call if set
	SetAddressError error

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int
}

// NewTestableDevice creates a new TestableDevice for testing.
func NewTestableDevice() *TestableDevice {
	return &TestableDevice{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// SetAddress records the address, optionally simulating an error.
func (t *TestableDevice) SetAddress(address int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Addresses = append(t.Addresses, address)

	if t.SetAddressError != nil {
		err := t.SetAddressError
		t.SetAddressError = nil
		return err
	}
	return nil
}

// Read reads from the read buffer, optionally simulating errors. A buffer
// holding fewer bytes than requested produces a short read, the same as a
// bus transfer cut off early.
func (t *TestableDevice) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("i2c device closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableDevice) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("i2c device closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the device as closed.
func (t *TestableDevice) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableDevice) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns all data written to the device.
func (t *TestableDevice) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.WriteBuffer.Bytes()
}

// Reset clears all buffers and resets state.
func (t *TestableDevice) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.Addresses = nil
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.Closed = false
	t.SetAddressError = nil
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
}
