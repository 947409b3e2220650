package d3xx

import (
	"fmt"
	"math"
	"time"

	"github.com/Gurux/gxcommon-go"
)

// Pipe identifies one unidirectional endpoint on the device. IN pipes carry
// data from the device to the host, OUT pipes from the host to the device.
// The values are the endpoint addresses the driver expects on the wire.
type Pipe byte

const (
	PipeIn0  Pipe = 0x82
	PipeIn1  Pipe = 0x83
	PipeIn2  Pipe = 0x84
	PipeIn3  Pipe = 0x85
	PipeOut0 Pipe = 0x02
	PipeOut1 Pipe = 0x03
	PipeOut2 Pipe = 0x04
	PipeOut3 Pipe = 0x05
)

const pipeCount = 8

// IsIn reports whether the pipe carries data from the device to the host.
func (p Pipe) IsIn() bool {
	return p&0x80 != 0
}

// IsOut reports whether the pipe carries data from the host to the device.
func (p Pipe) IsOut() bool {
	return !p.IsIn()
}

func (p Pipe) valid() bool {
	if p.IsIn() {
		return p >= PipeIn0 && p <= PipeIn3
	}
	return p >= PipeOut0 && p <= PipeOut3
}

// index maps the pipe to a dense 0..7 range: OUT 0-3 first, then IN 0-3.
func (p Pipe) index() int {
	if p.IsIn() {
		return 4 + int(p-PipeIn0)
	}
	return int(p - PipeOut0)
}

func (p Pipe) String() string {
	if !p.valid() {
		return fmt.Sprintf("Pipe(0x%02x)", byte(p))
	}
	if p.IsIn() {
		return fmt.Sprintf("In%d", p-PipeIn0)
	}
	return fmt.Sprintf("Out%d", p-PipeOut0)
}

// PipeParse returns the pipe named by value ("In0".."In3", "Out0".."Out3").
func PipeParse(value string) (Pipe, error) {
	for p := PipeIn0; p <= PipeIn3; p++ {
		if p.String() == value {
			return p, nil
		}
	}
	for p := PipeOut0; p <= PipeOut3; p++ {
		if p.String() == value {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pipe %q", gxcommon.ErrInvalidArgument, value)
}

// PipeHandle is a non-owning view of one pipe of an open device, obtained
// from Device.Pipe. It does not extend the device's lifetime: every call
// checks that the owning handle is still open and fails with ErrDeviceClosed
// otherwise.
type PipeHandle struct {
	d  *Device
	id Pipe
}

// ID returns the pipe this handle addresses.
func (p *PipeHandle) ID() Pipe {
	return p.id
}

// check runs the local validations shared by every pipe operation. It never
// reaches the native layer.
func (p *PipeHandle) check(write bool) error {
	if err := p.d.ensureOpen(); err != nil {
		return err
	}
	if !p.id.valid() {
		return fmt.Errorf("%w: pipe 0x%02x", gxcommon.ErrInvalidArgument, byte(p.id))
	}
	if write && !p.id.IsOut() {
		return fmt.Errorf("%w: write on %v", ErrInvalidPipeDirection, p.id)
	}
	if !write && !p.id.IsIn() {
		return fmt.Errorf("%w: read on %v", ErrInvalidPipeDirection, p.id)
	}
	return nil
}

// Read transfers from the pipe into buf and blocks until the driver
// completes the transfer, reports an error, or the pipe timeout elapses.
// Short reads are legal: the returned count may be less than len(buf) with a
// nil error. Concurrent reads of the same pipe are serialized internally;
// reads on other pipes of the same device are not blocked.
func (p *PipeHandle) Read(buf []byte) (int, error) {
	if err := p.check(false); err != nil {
		return 0, err
	}
	mu := &p.d.pipeMu[p.id.index()]
	mu.Lock()
	defer mu.Unlock()
	n, st := p.d.drv.readPipe(p.d.h, byte(p.id), buf)
	if st != StatusOK {
		// A failed transfer leaves the pipe in an undefined state; abort it
		// before reporting, per the D3XX programmer's guide.
		_ = p.d.drv.abortPipe(p.d.h, byte(p.id))
		return 0, statusError("FT_ReadPipe", st)
	}
	return n, nil
}

// Write transfers buf to the pipe and blocks until the driver completes the
// transfer, reports an error, or the pipe timeout elapses. Short writes are
// legal and reported through the returned count.
func (p *PipeHandle) Write(buf []byte) (int, error) {
	if err := p.check(true); err != nil {
		return 0, err
	}
	mu := &p.d.pipeMu[p.id.index()]
	mu.Lock()
	defer mu.Unlock()
	n, st := p.d.drv.writePipe(p.d.h, byte(p.id), buf)
	if st != StatusOK {
		_ = p.d.drv.abortPipe(p.d.h, byte(p.id))
		return 0, statusError("FT_WritePipe", st)
	}
	return n, nil
}

// Abort cancels all transfers queued on the pipe.
func (p *PipeHandle) Abort() error {
	if err := p.d.ensureOpen(); err != nil {
		return err
	}
	if !p.id.valid() {
		return fmt.Errorf("%w: pipe 0x%02x", gxcommon.ErrInvalidArgument, byte(p.id))
	}
	return statusError("FT_AbortPipe", p.d.drv.abortPipe(p.d.h, byte(p.id)))
}

// Timeout returns the transfer timeout configured for the pipe. Zero means
// transfers block indefinitely.
func (p *PipeHandle) Timeout() (time.Duration, error) {
	if err := p.d.ensureOpen(); err != nil {
		return 0, err
	}
	timeout, st := p.d.drv.pipeTimeout(p.d.h, byte(p.id))
	if st != StatusOK {
		return 0, statusError("FT_GetPipeTimeout", st)
	}
	return timeout, nil
}

// SetTimeout configures the transfer timeout for the pipe. Zero or a
// negative duration makes transfers block indefinitely.
func (p *PipeHandle) SetTimeout(timeout time.Duration) error {
	if err := p.d.ensureOpen(); err != nil {
		return err
	}
	if timeout < 0 {
		timeout = 0
	}
	return statusError("FT_SetPipeTimeout", p.d.drv.setPipeTimeout(p.d.h, byte(p.id), timeout))
}

// SetStreamPipes configures streaming mode for the given pipes with their
// fixed per-transfer sizes. Streaming is first cleared on every pipe, so a
// nil or empty map turns streaming off entirely. In streaming mode the
// driver requires every transfer on the pipe to use exactly the configured
// size.
func (d *Device) SetStreamPipes(pipes map[Pipe]int) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	if st := d.drv.clearStreamPipes(d.h); st != StatusOK {
		return statusError("FT_ClearStreamPipe", st)
	}
	for pipe, size := range pipes {
		if !pipe.valid() {
			return fmt.Errorf("%w: pipe 0x%02x", gxcommon.ErrInvalidArgument, byte(pipe))
		}
		if size <= 0 || int64(size) > math.MaxUint32 {
			return fmt.Errorf("%w: stream size %d on %v", gxcommon.ErrInvalidArgument, size, pipe)
		}
		if st := d.drv.setStreamPipe(d.h, byte(pipe), uint32(size)); st != StatusOK {
			return statusError("FT_SetStreamPipe", st)
		}
	}
	return nil
}

// ReadAsync issues an overlapped read from the pipe into buf. Ownership of
// buf passes to the returned operation until it reaches a terminal state.
func (p *PipeHandle) ReadAsync(buf []byte) (*Overlapped, error) {
	return newOverlapped(p, buf, false)
}

// WriteAsync issues an overlapped write of buf to the pipe. Ownership of buf
// passes to the returned operation until it reaches a terminal state.
func (p *PipeHandle) WriteAsync(buf []byte) (*Overlapped, error) {
	return newOverlapped(p, buf, true)
}
