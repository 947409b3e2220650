package d3xx

import (
	"sync"
	"sync/atomic"
	"time"
)

// fakeRead is one canned answer for a synchronous pipe read.
type fakeRead struct {
	data []byte
	st   Status
}

// fakeOverlapped is one in-flight overlapped request. Tests complete it
// through fakeDriver.complete or by aborting the pipe.
type fakeOverlapped struct {
	pipe  byte
	write bool
	buf   []byte

	mu     sync.Mutex
	done   bool
	n      int
	st     Status
	doneCh chan struct{}
}

func (ov *fakeOverlapped) finish(n int, st Status) {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	if ov.done {
		return
	}
	ov.done = true
	ov.n = n
	ov.st = st
	close(ov.doneCh)
}

// fakeDriver is an in-memory driver for tests. Every method records its name
// in calls so tests can assert that validation failures never reach the
// native layer.
type fakeDriver struct {
	mu sync.Mutex

	devices  []deviceListNode
	countAdj int // added to the reported count, simulating unplug races
	listSt   Status

	createSt   Status // forced open failure when not OK
	open       map[string]ftHandle
	handles    map[ftHandle]string
	next       ftHandle
	closeCalls int
	closeSt    Status

	reads       map[byte][]fakeRead
	emptyReadSt Status        // when a pipe's read queue is drained
	idleDelay   time.Duration // slept before reporting an empty queue
	written     map[byte][]byte
	writeSt     Status
	writeCap    int // when > 0, short-write limit
	aborted     []byte
	timeouts    map[byte]time.Duration

	pending map[byte]*fakeOverlapped
	asyncSt Status
	initSt  Status

	devDesc   usbDeviceDescriptor
	cfgDesc   usbConfigDescriptor
	ifcDescs  map[byte]usbInterfaceDescriptor
	strings   map[byte]string
	pipeInfos map[byte][]pipeInformationNode // keyed by interface index
	descSt    Status

	streams      map[byte]uint32
	streamClears int
	streamSt     Status

	released int

	cb       func(notifyEvent)
	notifySt Status

	gpioMask  uint32
	gpioDir   uint32
	gpioPull  uint32
	gpioValue uint32
	gpioSt    Status

	version uint32

	calls []string

	// Open, close and enumeration must never run concurrently; the fake
	// detects overlapping critical sections instead of corrupting state.
	inCritical atomic.Bool
	overlaps   atomic.Int32
	holdTime   time.Duration
}

func newFakeDriver(devices ...deviceListNode) *fakeDriver {
	return &fakeDriver{
		devices:     devices,
		open:        make(map[string]ftHandle),
		handles:     make(map[ftHandle]string),
		next:        1,
		reads:       make(map[byte][]fakeRead),
		emptyReadSt: StatusTimeout,
		written:     make(map[byte][]byte),
		timeouts:    make(map[byte]time.Duration),
		pending:     make(map[byte]*fakeOverlapped),
		asyncSt:     StatusIOPending,
		ifcDescs:    make(map[byte]usbInterfaceDescriptor),
		strings:     make(map[byte]string),
		pipeInfos:   make(map[byte][]pipeInformationNode),
		streams:     make(map[byte]uint32),
		version:     0x01020003,
	}
}

func (f *fakeDriver) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDriver) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeDriver) enterCritical() func() {
	if !f.inCritical.CompareAndSwap(false, true) {
		f.overlaps.Add(1)
	}
	if f.holdTime > 0 {
		time.Sleep(f.holdTime)
	}
	return func() { f.inCritical.Store(false) }
}

func (f *fakeDriver) createDeviceInfoList() (int, Status) {
	f.record("createDeviceInfoList")
	defer f.enterCritical()()
	if f.listSt != StatusOK {
		return 0, f.listSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices) + f.countAdj, StatusOK
}

func (f *fakeDriver) getDeviceInfoList(count int) ([]deviceListNode, Status) {
	f.record("getDeviceInfoList")
	defer f.enterCritical()()
	f.mu.Lock()
	defer f.mu.Unlock()
	nodes := make([]deviceListNode, len(f.devices))
	copy(nodes, f.devices)
	return nodes, StatusOK
}

func (f *fakeDriver) create(serial string) (ftHandle, Status) {
	f.record("create")
	defer f.enterCritical()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSt != StatusOK {
		return 0, f.createSt
	}
	known := false
	for _, d := range f.devices {
		if d.Serial == serial {
			known = true
			break
		}
	}
	if !known {
		return 0, StatusDeviceNotFound
	}
	if _, taken := f.open[serial]; taken {
		return 0, StatusBusy
	}
	h := f.next
	f.next++
	f.open[serial] = h
	f.handles[h] = serial
	return h, StatusOK
}

func (f *fakeDriver) closeHandle(h ftHandle) Status {
	f.record("closeHandle")
	defer f.enterCritical()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if serial, ok := f.handles[h]; ok {
		delete(f.handles, h)
		delete(f.open, serial)
	}
	return f.closeSt
}

func (f *fakeDriver) readPipe(h ftHandle, pipe byte, buf []byte) (int, Status) {
	f.record("readPipe")
	f.mu.Lock()
	queue := f.reads[pipe]
	if len(queue) == 0 {
		delay := f.idleDelay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		return 0, f.emptyReadSt
	}
	head := queue[0]
	f.reads[pipe] = queue[1:]
	f.mu.Unlock()
	if head.st != StatusOK {
		return 0, head.st
	}
	return copy(buf, head.data), StatusOK
}

func (f *fakeDriver) writePipe(h ftHandle, pipe byte, buf []byte) (int, Status) {
	f.record("writePipe")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeSt != StatusOK {
		return 0, f.writeSt
	}
	n := len(buf)
	if f.writeCap > 0 && n > f.writeCap {
		n = f.writeCap
	}
	f.written[pipe] = append(f.written[pipe], buf[:n]...)
	return n, StatusOK
}

func (f *fakeDriver) abortPipe(h ftHandle, pipe byte) Status {
	f.record("abortPipe")
	f.mu.Lock()
	f.aborted = append(f.aborted, pipe)
	ov := f.pending[pipe]
	f.mu.Unlock()
	if ov != nil {
		ov.finish(0, StatusOperationAborted)
	}
	return StatusOK
}

func (f *fakeDriver) pipeTimeout(h ftHandle, pipe byte) (time.Duration, Status) {
	f.record("pipeTimeout")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeouts[pipe], StatusOK
}

func (f *fakeDriver) setPipeTimeout(h ftHandle, pipe byte, timeout time.Duration) Status {
	f.record("setPipeTimeout")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts[pipe] = timeout
	return StatusOK
}

func (f *fakeDriver) deviceDescriptor(h ftHandle) (usbDeviceDescriptor, Status) {
	f.record("deviceDescriptor")
	if f.descSt != StatusOK {
		return usbDeviceDescriptor{}, f.descSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devDesc, StatusOK
}

func (f *fakeDriver) configurationDescriptor(h ftHandle) (usbConfigDescriptor, Status) {
	f.record("configurationDescriptor")
	if f.descSt != StatusOK {
		return usbConfigDescriptor{}, f.descSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgDesc, StatusOK
}

func (f *fakeDriver) interfaceDescriptor(h ftHandle, index byte) (usbInterfaceDescriptor, Status) {
	f.record("interfaceDescriptor")
	if f.descSt != StatusOK {
		return usbInterfaceDescriptor{}, f.descSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	desc, ok := f.ifcDescs[index]
	if !ok {
		return usbInterfaceDescriptor{}, StatusInvalidArgs
	}
	return desc, StatusOK
}

func (f *fakeDriver) stringDescriptor(h ftHandle, index byte) (string, Status) {
	f.record("stringDescriptor")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.strings[index]
	if !ok {
		return "", StatusInvalidArgs
	}
	return s, StatusOK
}

func (f *fakeDriver) pipeInformation(h ftHandle, iface, index byte) (pipeInformationNode, Status) {
	f.record("pipeInformation")
	f.mu.Lock()
	defer f.mu.Unlock()
	nodes := f.pipeInfos[iface]
	if int(index) >= len(nodes) {
		return pipeInformationNode{}, StatusInvalidArgs
	}
	return nodes[index], StatusOK
}

func (f *fakeDriver) setStreamPipe(h ftHandle, pipe byte, size uint32) Status {
	f.record("setStreamPipe")
	if f.streamSt != StatusOK {
		return f.streamSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[pipe] = size
	return StatusOK
}

func (f *fakeDriver) clearStreamPipes(h ftHandle) Status {
	f.record("clearStreamPipes")
	if f.streamSt != StatusOK {
		return f.streamSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamClears++
	f.streams = make(map[byte]uint32)
	return StatusOK
}

func (f *fakeDriver) initOverlapped(h ftHandle) (overlappedToken, Status) {
	f.record("initOverlapped")
	if f.initSt != StatusOK {
		return nil, f.initSt
	}
	return &fakeOverlapped{doneCh: make(chan struct{})}, StatusOK
}

func (f *fakeDriver) readPipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status {
	f.record("readPipeAsync")
	return f.submitAsync(pipe, buf, false, tok)
}

func (f *fakeDriver) writePipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status {
	f.record("writePipeAsync")
	return f.submitAsync(pipe, buf, true, tok)
}

func (f *fakeDriver) submitAsync(pipe byte, buf []byte, write bool, tok overlappedToken) Status {
	if f.asyncSt != StatusIOPending && f.asyncSt != StatusOK {
		return f.asyncSt
	}
	ov := tok.(*fakeOverlapped)
	ov.pipe = pipe
	ov.buf = buf
	ov.write = write
	f.mu.Lock()
	f.pending[pipe] = ov
	f.mu.Unlock()
	return f.asyncSt
}

func (f *fakeDriver) overlappedResult(h ftHandle, tok overlappedToken, wait bool) (int, Status) {
	f.record("overlappedResult")
	ov := tok.(*fakeOverlapped)
	if wait {
		<-ov.doneCh
	} else {
		select {
		case <-ov.doneCh:
		default:
			return 0, StatusIOIncomplete
		}
	}
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return ov.n, ov.st
}

func (f *fakeDriver) releaseOverlapped(h ftHandle, tok overlappedToken) Status {
	f.record("releaseOverlapped")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return StatusOK
}

// complete finishes the pending request on pipe as if the transfer moved n
// bytes with the given status.
func (f *fakeDriver) complete(pipe byte, n int, st Status) {
	f.mu.Lock()
	ov := f.pending[pipe]
	f.mu.Unlock()
	if ov != nil {
		ov.finish(n, st)
	}
}

func (f *fakeDriver) setNotificationCallback(h ftHandle, cb func(notifyEvent)) Status {
	f.record("setNotificationCallback")
	if f.notifySt != StatusOK {
		return f.notifySt
	}
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return StatusOK
}

func (f *fakeDriver) clearNotificationCallback(h ftHandle) {
	f.record("clearNotificationCallback")
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

// fire delivers an event as the driver's callback thread would.
func (f *fakeDriver) fire(ev notifyEvent) bool {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(ev)
	return true
}

func (f *fakeDriver) enableGPIO(h ftHandle, mask, direction uint32) Status {
	f.record("enableGPIO")
	if f.gpioSt != StatusOK {
		return f.gpioSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gpioMask |= mask
	f.gpioDir = (f.gpioDir &^ mask) | (direction & mask)
	return StatusOK
}

func (f *fakeDriver) setGPIOPull(h ftHandle, mask, pull uint32) Status {
	f.record("setGPIOPull")
	if f.gpioSt != StatusOK {
		return f.gpioSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gpioPull = pull
	return StatusOK
}

func (f *fakeDriver) writeGPIO(h ftHandle, mask, data uint32) Status {
	f.record("writeGPIO")
	if f.gpioSt != StatusOK {
		return f.gpioSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gpioValue = (f.gpioValue &^ mask) | (data & mask)
	return StatusOK
}

func (f *fakeDriver) readGPIO(h ftHandle) (uint32, Status) {
	f.record("readGPIO")
	if f.gpioSt != StatusOK {
		return 0, f.gpioSt
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gpioValue, StatusOK
}

func (f *fakeDriver) libraryVersion() (uint32, Status) {
	f.record("libraryVersion")
	return f.version, StatusOK
}

// testNode is a convenience enumeration entry.
func testNode(serial string) deviceListNode {
	return deviceListNode{
		Type:        600,
		ID:          0x0403601e,
		LocID:       0x1234,
		Serial:      serial,
		Description: "FTDI SuperSpeed-FIFO Bridge",
	}
}
