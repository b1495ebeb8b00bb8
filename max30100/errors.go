package max30100

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is matched by every bus failure returned by the device.
	ErrTransport = errors.New("max30100: bus transaction failed")
	// ErrNotDevice reports a part ID other than 0x11. Some compatible clones
	// misreport their identity, so New only logs it.
	ErrNotDevice = errors.New("max30100: part ID does not match (0x11)")
	// ErrResetTimeout is returned when the reset bit does not clear within
	// the retry budget.
	ErrResetTimeout = errors.New("max30100: reset bit did not clear")
	// ErrTempTimeout is returned when the temperature ready flag never shows
	// up. It means there is no new temperature, the device is still usable.
	ErrTempTimeout = errors.New("max30100: temperature not ready")
	// ErrRestore is returned when the configuration saved before a
	// temperature reading could not be written back.
	ErrRestore = errors.New("max30100: could not restore configuration")
	// ErrConfig is returned for invalid parameters, before any bus access.
	ErrConfig = errors.New("max30100: invalid configuration")
)

// BusError wraps a failed register transaction.
type BusError struct {
	Op  string
	Reg byte
	Err error
}

// Error implements error.
func (e *BusError) Error() string {
	return fmt.Sprintf("max30100: could not %s register %#02x: %v", e.Op, e.Reg, e.Err)
}

// Unwrap returns the underlying bus error.
func (e *BusError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport as a match.
func (e *BusError) Is(target error) bool {
	return target == ErrTransport
}
