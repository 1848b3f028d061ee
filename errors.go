package ms4525do

import (
	"errors"
	"fmt"
)

var (
	// ErrFaultDetected is returned when either read of a measurement pair
	// carries the fault status. Power cycling the sensor or checking for
	// out-of-range pressure are the usual remedies.
	ErrFaultDetected = errors.New("ms4525do: sensor fault detected")

	// ErrStaleDataMismatch is returned when double-read validation fails:
	// the second read was not stale, or the two reads disagreed on counts.
	// The read was torn; retrying is the caller's call.
	ErrStaleDataMismatch = errors.New("ms4525do: double-read validation failed")
)

// TransportError wraps a bus failure from the underlying Transport. Use
// errors.As to recover it and Unwrap to reach the bus error.
type TransportError struct {
	Op  string // which transaction failed
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ms4525do: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidStatusError reports an unexpected status code on the first read of
// a measurement pair (stale or reserved where normal was required).
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("ms4525do: invalid sensor status %q on first read", e.Status)
}
