package i2cmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Devantech USB-ISS internal command set. The adapter enumerates as a CDC
// serial port; every exchange is a request frame followed by a fixed-size
// reply.
const (
	usbissSetup   = 0x5A // prefix for adapter-internal commands
	usbissVersion = 0x01 // reply: module id, firmware version, current mode
	usbissSetMode = 0x02 // reply: ack/nack, 0x00

	usbissModuleID = 0x07
	usbissAck      = 0xFF

	usbissModeI2CH100 = 0x60 // hardware I2C at 100 kHz
	usbissIOModeLow   = 0x04 // spare pins driven low

	usbissI2CDirect  = 0x54 // I2C_AD0: raw transfer, no register address
	usbissMaxPayload = 60
)

// SerialPorter is the minimal serial port surface the USB-ISS driver needs.
// A real one is a serial.Port (go.bug.st/serial).
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// usbissDevice adapts a Devantech USB-ISS USB-to-I2C bridge to the Device
// interface. The adapter has no SetAddress state of its own; the target
// address rides along in every transfer frame.
type usbissDevice struct {
	port     SerialPorter
	addr     int
	firmware byte
}

// OpenUSBISS opens the serial port at path and initializes the USB-ISS
// adapter behind it for hardware I2C.
func OpenUSBISS(path string) (Device, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: 19200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	dev, err := NewUSBISS(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return dev, nil
}

// NewUSBISS probes the adapter on an already-open port and switches it into
// I2C mode.
func NewUSBISS(port SerialPorter) (Device, error) {
	d := &usbissDevice{port: port}
	if err := d.initialize(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *usbissDevice) initialize() error {
	if _, err := d.port.Write([]byte{usbissSetup, usbissVersion}); err != nil {
		return fmt.Errorf("usbiss: version probe: %w", err)
	}
	var version [3]byte
	if _, err := io.ReadFull(d.port, version[:]); err != nil {
		return fmt.Errorf("usbiss: version reply: %w", err)
	}
	if version[0] != usbissModuleID {
		return fmt.Errorf("usbiss: unexpected module id %#02x, want %#02x", version[0], usbissModuleID)
	}
	d.firmware = version[1]

	if _, err := d.port.Write([]byte{usbissSetup, usbissSetMode, usbissModeI2CH100, usbissIOModeLow}); err != nil {
		return fmt.Errorf("usbiss: set mode: %w", err)
	}
	var reply [2]byte
	if _, err := io.ReadFull(d.port, reply[:]); err != nil {
		return fmt.Errorf("usbiss: set mode reply: %w", err)
	}
	if reply[0] != usbissAck {
		return fmt.Errorf("usbiss: adapter rejected I2C mode (%#02x %#02x)", reply[0], reply[1])
	}
	return nil
}

// Firmware returns the adapter firmware revision reported during the
// version probe.
func (d *usbissDevice) Firmware() byte { return d.firmware }

func (d *usbissDevice) SetAddress(address int) error {
	d.addr = address
	return nil
}

// Write sends p to the current address in a single I2C_AD0 frame. The
// adapter answers with one byte: zero means the device did not acknowledge.
func (d *usbissDevice) Write(p []byte) (int, error) {
	if len(p) > usbissMaxPayload {
		return 0, fmt.Errorf("usbiss: payload %d exceeds %d byte frame limit", len(p), usbissMaxPayload)
	}
	frame := make([]byte, 0, 3+len(p))
	frame = append(frame, usbissI2CDirect, byte(d.addr<<1), byte(len(p)))
	frame = append(frame, p...)
	if _, err := d.port.Write(frame); err != nil {
		return 0, fmt.Errorf("usbiss: write frame: %w", err)
	}
	var ack [1]byte
	if _, err := io.ReadFull(d.port, ack[:]); err != nil {
		return 0, fmt.Errorf("usbiss: write ack: %w", err)
	}
	if ack[0] == 0 {
		return 0, fmt.Errorf("usbiss: device %#02x nacked write", d.addr)
	}
	return len(p), nil
}

// Read fills p from the current address in a single I2C_AD0 frame.
func (d *usbissDevice) Read(p []byte) (int, error) {
	if len(p) > usbissMaxPayload {
		return 0, fmt.Errorf("usbiss: payload %d exceeds %d byte frame limit", len(p), usbissMaxPayload)
	}
	if _, err := d.port.Write([]byte{usbissI2CDirect, byte(d.addr<<1) | 1, byte(len(p))}); err != nil {
		return 0, fmt.Errorf("usbiss: read frame: %w", err)
	}
	return io.ReadFull(d.port, p)
}

func (d *usbissDevice) Close() error {
	return d.port.Close()
}
