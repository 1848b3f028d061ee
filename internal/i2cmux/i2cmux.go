// Package i2cmux serializes access to a single I2C bus shared by multiple
// device drivers and adapts interchangeable bus backends (the Linux i2c-dev
// interface, a USB-ISS serial adapter, an in-memory simulator) to one
// Device interface.
package i2cmux

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// A Device is a single opened I2C bus handle. A real one is typically a
// *sysfs.I2cDevice (gobot.io/x/gobot/sysfs); see OpenDevfs and OpenUSBISS.
type Device interface {
	SetAddress(address int) error
	io.ReadWriteCloser
}

// Mux funnels transactions from multiple drivers onto a single bus Device.
// The i2c-dev interface keeps one target address per file handle, so a
// SetAddress and its transfer must never interleave with another driver's.
type Mux struct {
	mu  sync.Mutex
	dev Device

	transactions uint64
	errors       uint64
}

// NewMux creates a Mux owning the given bus device. The Mux assumes sole
// use of the device; callers should not touch it directly afterwards.
func NewMux(dev Device) *Mux {
	return &Mux{dev: dev}
}

// Write sends p to the device at addr in one bus transaction.
func (m *Mux) Write(addr byte, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions++
	if err := m.dev.SetAddress(int(addr)); err != nil {
		m.errors++
		return fmt.Errorf("set address %#02x: %w", addr, err)
	}
	n, err := m.dev.Write(p)
	if err != nil {
		m.errors++
		return err
	}
	if n != len(p) {
		m.errors++
		return fmt.Errorf("short write to %#02x: %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// Read fills p from the device at addr. One Read call on the underlying
// device is one bus transaction with its own START condition; a partial
// result cannot be resumed, so short reads are reported as errors rather
// than retried.
func (m *Mux) Read(addr byte, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions++
	if err := m.dev.SetAddress(int(addr)); err != nil {
		m.errors++
		return fmt.Errorf("set address %#02x: %w", addr, err)
	}
	n, err := m.dev.Read(p)
	if err != nil {
		m.errors++
		return err
	}
	if n != len(p) {
		m.errors++
		return fmt.Errorf("short read from %#02x: %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// Close closes the underlying bus device.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev.Close()
}

// Stats returns the number of bus transactions attempted and how many of
// them failed.
func (m *Mux) Stats() (transactions, errors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions, m.errors
}

// AttachAdminRoutes attaches bus debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("i2c", "I2C bus transaction counters", func(w http.ResponseWriter, r *http.Request) {
		transactions, errors := m.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]uint64{
			"transactions": transactions,
			"errors":       errors,
		})
	})
}
