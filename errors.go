package d3xx

import (
	"errors"
	"fmt"
)

// Status is a raw FT_STATUS code returned by the D3XX driver. Zero means
// success; codes 1 through 32 are defined by the vendor header, everything
// above is folded into StatusOtherError.
type Status uint32

// FT_STATUS values from FTD3XX.h.
const (
	StatusOK Status = iota
	StatusInvalidHandle
	StatusDeviceNotFound
	StatusDeviceNotOpened
	StatusIOError
	StatusInsufficientResources
	StatusInvalidParameter
	StatusInvalidBaudRate
	StatusDeviceNotOpenedForErase
	StatusDeviceNotOpenedForWrite
	StatusFailedToWriteDevice
	StatusEEPROMReadFailed
	StatusEEPROMWriteFailed
	StatusEEPROMEraseFailed
	StatusEEPROMNotPresent
	StatusEEPROMNotProgrammed
	StatusInvalidArgs
	StatusNotSupported
	StatusNoMoreItems
	StatusTimeout
	StatusOperationAborted
	StatusReservedPipe
	StatusInvalidControlRequestDirection
	StatusInvalidControlRequestType
	StatusIOPending
	StatusIOIncomplete
	StatusHandleEOF
	StatusBusy
	StatusNoSystemResources
	StatusDeviceListNotReady
	StatusDeviceNotConnected
	StatusIncorrectDevicePath
	StatusOtherError
)

var statusNames = [...]string{
	"OK",
	"invalid handle",
	"device not found",
	"device not opened",
	"I/O error",
	"insufficient resources",
	"invalid parameter",
	"invalid baud rate",
	"device not opened for erase",
	"device not opened for write",
	"failed to write device",
	"EEPROM read failed",
	"EEPROM write failed",
	"EEPROM erase failed",
	"EEPROM not present",
	"EEPROM not programmed",
	"invalid args",
	"not supported",
	"no more items",
	"timeout",
	"operation aborted",
	"reserved pipe",
	"invalid control request direction",
	"invalid control request type",
	"I/O pending",
	"I/O incomplete",
	"handle EOF",
	"busy",
	"no system resources",
	"device list not ready",
	"device not connected",
	"incorrect device path",
	"other error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return statusNames[StatusOtherError]
}

// Error implements the error interface so that raw statuses can be wrapped
// and matched with errors.Is.
func (s Status) Error() string {
	return fmt.Sprintf("FT_STATUS %d (%s)", uint32(s), s.String())
}

// Errors reported by this package. Native statuses with a well-understood
// meaning are translated to one of these sentinels; use errors.Is to match.
var (
	// ErrDeviceNotFound is returned when a device cannot be located,
	// typically because it was disconnected after enumeration.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceAlreadyOpen is returned when the driver denies exclusive
	// access because the device is held by this or another process.
	ErrDeviceAlreadyOpen = errors.New("device already open")

	// ErrPermissionDenied is returned when the device node exists but is
	// not accessible to the calling process.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeviceClosed is returned by every operation derived from a handle
	// that has been closed. The native layer is never reached.
	ErrDeviceClosed = errors.New("device closed")

	// ErrTimeout is returned when a transfer or wait exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidPipeDirection is returned for a read on an OUT pipe or a
	// write on an IN pipe, before any native call is made.
	ErrInvalidPipeDirection = errors.New("invalid pipe direction")

	// ErrInvalidGpioPin is returned for a GPIO pin index outside the range
	// the device reports, before any native call is made.
	ErrInvalidGpioPin = errors.New("invalid GPIO pin")

	// ErrOperationCancelled is returned by an overlapped operation that was
	// aborted before completing.
	ErrOperationCancelled = errors.New("operation cancelled")

	// ErrNotificationBusy is returned when a second goroutine waits for
	// notifications on a handle that already has a waiter.
	ErrNotificationBusy = errors.New("notification wait already in progress")

	// ErrNotSupported is returned on platforms without a D3XX binding.
	ErrNotSupported = errors.New("d3xx is not supported on this platform")
)

// DriverError reports a native status this package does not classify.
type DriverError struct {
	Op     string
	Status Status
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Status)
}

func (e *DriverError) Unwrap() error {
	return e.Status
}

// statusError translates a native status into a package error. Statuses with
// a defined meaning map to sentinel errors; the rest are wrapped in a
// DriverError. A zero status maps to nil.
func statusError(op string, s Status) error {
	switch s {
	case StatusOK:
		return nil
	case StatusDeviceNotFound, StatusDeviceNotConnected:
		return fmt.Errorf("%s: %w", op, ErrDeviceNotFound)
	case StatusBusy:
		return fmt.Errorf("%s: %w", op, ErrDeviceAlreadyOpen)
	case StatusIncorrectDevicePath:
		return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	case StatusTimeout:
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case StatusOperationAborted:
		return fmt.Errorf("%s: %w", op, ErrOperationCancelled)
	default:
		return &DriverError{Op: op, Status: s}
	}
}
