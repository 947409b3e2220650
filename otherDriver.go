//go:build !windows

package d3xx

// The D3XX shared library on Linux and macOS is only reachable through its C
// headers, which would require cgo against libftd3xx. No binding is provided
// here; enumeration and open report ErrNotSupported so callers can degrade
// gracefully.
func loadDriver() (driver, error) {
	return nil, ErrNotSupported
}
