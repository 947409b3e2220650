package d3xx

import (
	"fmt"
	"sync"
)

// OverlappedState is the lifecycle state of an overlapped operation.
// Pending is the only non-terminal state; once a terminal state is reached
// it never changes again.
type OverlappedState int

const (
	OverlappedPending OverlappedState = iota
	OverlappedCompleted
	OverlappedCancelled
	OverlappedFailed
)

func (s OverlappedState) String() string {
	switch s {
	case OverlappedPending:
		return "Pending"
	case OverlappedCompleted:
		return "Completed"
	case OverlappedCancelled:
		return "Cancelled"
	case OverlappedFailed:
		return "Failed"
	default:
		return fmt.Sprintf("OverlappedState(%d)", int(s))
	}
}

// Overlapped is one in-flight asynchronous transfer. The operation owns the
// caller's buffer from issue until a terminal state is reached: the driver
// may read or write the buffer at any point in between, so the caller must
// not touch it until Wait, Poll or Cancel reports completion.
type Overlapped struct {
	d  *Device
	id Pipe
	op string

	mu     sync.Mutex
	state  OverlappedState
	n      int
	err    error
	cancel bool
	buf    []byte
	tok    overlappedToken
	done   chan struct{}

	// waitOnce funnels the blocking native wait through a single caller;
	// everyone else parks on done. natMu keeps Poll's non-blocking check
	// from racing that native wait on the same request.
	waitOnce sync.Once
	natMu    sync.Mutex
}

func newOverlapped(p *PipeHandle, buf []byte, write bool) (*Overlapped, error) {
	if err := p.check(write); err != nil {
		return nil, err
	}
	op := "FT_ReadPipe (overlapped)"
	if write {
		op = "FT_WritePipe (overlapped)"
	}
	tok, st := p.d.drv.initOverlapped(p.d.h)
	if st != StatusOK {
		return nil, statusError("FT_InitializeOverlapped", st)
	}
	if write {
		st = p.d.drv.writePipeAsync(p.d.h, byte(p.id), buf, tok)
	} else {
		st = p.d.drv.readPipeAsync(p.d.h, byte(p.id), buf, tok)
	}
	if st != StatusOK && st != StatusIOPending {
		_ = p.d.drv.abortPipe(p.d.h, byte(p.id))
		_ = p.d.drv.releaseOverlapped(p.d.h, tok)
		return nil, statusError(op, st)
	}
	return &Overlapped{
		d:    p.d,
		id:   p.id,
		op:   op,
		buf:  buf,
		tok:  tok,
		done: make(chan struct{}),
	}, nil
}

// Pipe returns the pipe the operation was issued on.
func (o *Overlapped) Pipe() Pipe {
	return o.id
}

// State returns the current lifecycle state.
func (o *Overlapped) State() OverlappedState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the transferred byte count once the operation reached a
// terminal state. Completed operations return the count and a nil error;
// cancelled and failed ones return their error. Calling Result on a pending
// operation reports I/O pending.
func (o *Overlapped) Result() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == OverlappedPending {
		return 0, statusError(o.op, StatusIOPending)
	}
	return o.n, o.err
}

// Wait blocks until the operation reaches a terminal state and returns the
// transferred byte count. It is safe to call from multiple goroutines and
// after completion. Closing the device unblocks a pending Wait: the
// operation fails with ErrDeviceClosed instead of waiting on a handle that
// no longer exists.
func (o *Overlapped) Wait() (int, error) {
	if o.d.closed.Load() {
		o.finishClosed()
		return o.Result()
	}
	o.waitOnce.Do(func() { go o.await() })
	select {
	case <-o.done:
	case <-o.d.done:
		o.finishClosed()
	}
	return o.Result()
}

// Poll checks for completion without blocking. It returns true once the
// operation has reached a terminal state; the outcome is then available
// through Result.
func (o *Overlapped) Poll() bool {
	if o.terminal() {
		return true
	}
	if o.d.closed.Load() {
		o.finishClosed()
		return true
	}
	// TryLock: a blocked Wait holds natMu for the full native wait and a
	// poll must not queue up behind it.
	if !o.natMu.TryLock() {
		return false
	}
	defer o.natMu.Unlock()
	if o.terminal() {
		return true
	}
	n, st := o.d.drv.overlappedResult(o.d.h, o.tok, false)
	if st == StatusIOPending || st == StatusIOIncomplete {
		return false
	}
	o.finish(n, st)
	return true
}

// Cancel requests cancellation of a pending operation and blocks until the
// driver confirms the request is no longer in flight. Only then does the
// state become Cancelled and buffer ownership return to the caller — never
// speculatively, since the driver may still be touching the buffer while the
// abort is processed. Cancelling an operation that already reached a
// terminal state is a no-op.
func (o *Overlapped) Cancel() error {
	o.mu.Lock()
	if o.state != OverlappedPending {
		o.mu.Unlock()
		return nil
	}
	o.cancel = true
	o.mu.Unlock()

	// A closed device has no pipe left to abort; fail fast instead of
	// handing the dead handle to the driver.
	if err := o.d.ensureOpen(); err != nil {
		o.finishClosed()
		return err
	}

	abortSt := o.d.drv.abortPipe(o.d.h, byte(o.id))
	o.waitOnce.Do(func() { go o.await() })
	select {
	case <-o.done:
	case <-o.d.done:
		o.finishClosed()
	}

	switch o.State() {
	case OverlappedCancelled, OverlappedCompleted:
		// Confirmed cancelled, or the transfer won the race and finished.
		return nil
	default:
		if abortSt != StatusOK {
			return statusError("FT_AbortPipe", abortSt)
		}
		return nil
	}
}

func (o *Overlapped) terminal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != OverlappedPending
}

// await performs the single blocking native wait for this request. It runs
// in exactly one goroutine, guarded by waitOnce.
func (o *Overlapped) await() {
	o.natMu.Lock()
	defer o.natMu.Unlock()
	if o.terminal() {
		// A Poll observed completion before the wait started.
		return
	}
	n, st := o.d.drv.overlappedResult(o.d.h, o.tok, true)
	o.finish(n, st)
}

// finish latches the terminal state. The first caller wins; later calls
// observe the terminal state and return. Buffer ownership returns to the
// caller on this edge: the driver has confirmed it no longer references the
// memory.
func (o *Overlapped) finish(n int, st Status) {
	o.mu.Lock()
	if o.state != OverlappedPending {
		o.mu.Unlock()
		return
	}
	switch {
	case st == StatusOK:
		o.state = OverlappedCompleted
		o.n = n
	case o.cancel && st == StatusOperationAborted:
		o.state = OverlappedCancelled
		o.err = fmt.Errorf("%s: %w", o.op, ErrOperationCancelled)
	default:
		o.state = OverlappedFailed
		o.err = statusError(o.op, st)
	}
	o.buf = nil
	tok := o.tok
	o.mu.Unlock()
	close(o.done)
	_ = o.d.drv.releaseOverlapped(o.d.h, tok)
}

// finishClosed latches Failed with ErrDeviceClosed when the owning device
// went away under a pending operation. The native request is not released:
// the handle it belonged to is already gone, and a still-running native wait
// finds the state terminal and backs off.
func (o *Overlapped) finishClosed() {
	o.mu.Lock()
	if o.state != OverlappedPending {
		o.mu.Unlock()
		return
	}
	o.state = OverlappedFailed
	o.err = fmt.Errorf("%s: %w", o.op, ErrDeviceClosed)
	o.buf = nil
	o.mu.Unlock()
	close(o.done)
}
