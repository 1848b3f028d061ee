package ms4525do

import "fmt"

// Status is the 2-bit sensor state carried in the top bits of a frame's
// first byte.
type Status uint8

const (
	// StatusNormal marks a fresh, valid data packet.
	StatusNormal Status = 0b00
	// StatusReserved is the command-mode code; it is never valid during a read.
	StatusReserved Status = 0b01
	// StatusStale means the data has already been fetched since the last
	// measurement cycle.
	StatusStale Status = 0b10
	// StatusFault means the sensor detected an internal error condition.
	StatusFault Status = 0b11
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusReserved:
		return "reserved"
	case StatusStale:
		return "stale"
	case StatusFault:
		return "fault"
	}
	return fmt.Sprintf("unknown(%#02x)", uint8(s))
}
