// Package d3xx provides a safe Go layer over the FTDI D3XX driver for FT60x
// SuperSpeed USB bridge chips. It wraps enumeration, device open/close, pipe
// transfers, overlapped (asynchronous) I/O, GPIO control and driver
// notifications, and also implements the common IGXMedia-style contract:
// open/close a connection, send/receive data (optionally framed by an EOP
// marker), and emit events for received data, errors, tracing and state
// changes.
//
// Features
//
//   - Enumeration: ListDevices reports serial, description, VID/PID, USB speed.
//   - Pipes: synchronous Read/Write on IN/OUT pipes with per-pipe timeouts.
//   - Overlapped I/O: submit a transfer, then Wait, Poll or Cancel it.
//   - GPIO: direction, pull mode and level control for the two FT60x pins.
//   - Notifications: WaitForNotification delivers data and GPIO events.
//   - Events: Received, Error, Trace and MediaState callbacks on Media.
//   - Concurrency: handles are safe for concurrent use; Close is idempotent
//     and unblocks pending waits.
//
// # Construction
//
// Use Open with a serial number for direct device access, or NewMedia for the
// event-driven media contract. Additional options (such as EOP, tracing) can
// be configured through setters.
//
// Example
//
//	dev, err := d3xx.Open("FT60X123")
//	if err != nil {
//	    // handle open error
//	}
//	defer dev.Close()
//
//	pipe := dev.Pipe(d3xx.PipeOut0)
//	if _, err := pipe.Write([]byte{0x01, 0x02, 0x03}); err != nil {
//	    // handle transfer error
//	}
//
// # Overlapped transfers
//
// ReadAsync and WriteAsync return an Overlapped that tracks one transfer.
// Wait blocks until it finishes, Poll checks without blocking, and Cancel
// aborts the pipe and waits for the driver to confirm before reporting the
// transfer as cancelled. The transfer buffer must not be touched while the
// operation is pending.
//
// # Errors and timeouts
//
// Driver failures are translated to sentinel errors such as ErrTimeout,
// ErrDeviceNotFound and ErrDeviceClosed; unmapped FT_STATUS codes surface as
// *DriverError. All errors support errors.Is. Error messages are lowercased
// per Go style guidelines.
//
// # Notes
//
// The zero value of Device is not ready for use; always construct via Open or
// DeviceInfo.Open. Long-running work in event handlers should be offloaded to
// a separate goroutine to avoid blocking I/O paths.
package d3xx
