package ms4525do

const (
	// bridgeMask selects the low 6 bits of byte 0, the pressure MSBs.
	bridgeMask = 0b0011_1111
	// temperatureMask selects the top 3 bits of byte 3, the temperature LSBs.
	temperatureMask = 0b1110_0000

	maxPressureCount    = 1<<14 - 1 // 16383
	maxTemperatureCount = 1<<11 - 1 // 2047
)

// Frame is one 4-byte measurement packet as it arrives off the bus:
// byte 0 carries the status in bits [7:6] and the pressure MSBs in [5:0],
// byte 1 the pressure LSBs, byte 2 temperature bits [10:3], and byte 3 the
// remaining temperature bits in [7:5]. Decoding is pure bit work; the
// electrical read lives in the Transport.
type Frame [4]byte

// Status returns the 2-bit status code.
func (f Frame) Status() Status {
	return Status(f[0] >> 6)
}

// PressureCount returns the raw 14-bit bridge (pressure) count, 0..16383.
func (f Frame) PressureCount() uint16 {
	return uint16(f[0]&bridgeMask)<<8 | uint16(f[1])
}

// TemperatureCount returns the raw 11-bit temperature count, 0..2047.
func (f Frame) TemperatureCount() uint16 {
	return (uint16(f[2])<<8 | uint16(f[3]&temperatureMask)) >> 5
}
