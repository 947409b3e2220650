package d3xx

import (
	"sync"
	"time"
)

// ftHandle is the opaque device handle owned by the native driver.
type ftHandle uintptr

// deviceListNode is one entry of the driver's device table, already decoded
// from its native layout.
type deviceListNode struct {
	Flags       uint32
	Type        uint32
	ID          uint32
	LocID       uint32
	Serial      string
	Description string
}

// overlappedToken identifies one in-flight overlapped request. The concrete
// type belongs to the driver implementation that issued it and is never
// inspected outside of it.
type overlappedToken interface{}

// usbDeviceDescriptor is the standard USB device descriptor, decoded from
// its native layout. String fields arrive as descriptor indexes; a zero
// index means the device carries no such string.
type usbDeviceDescriptor struct {
	USB            uint16
	Class          byte
	SubClass       byte
	Protocol       byte
	MaxPacketSize0 byte
	VID            uint16
	PID            uint16
	Release        uint16
	ManufacturerIx byte
	ProductIx      byte
	SerialIx       byte
	Configurations byte
}

// usbConfigDescriptor is the active USB configuration descriptor.
type usbConfigDescriptor struct {
	Interfaces    byte
	Value         byte
	DescriptionIx byte
	Attributes    byte
	MaxPower      byte
}

// usbInterfaceDescriptor is one USB interface descriptor.
type usbInterfaceDescriptor struct {
	Number           byte
	AlternateSetting byte
	Endpoints        byte
	Class            byte
	SubClass         byte
	Protocol         byte
	DescriptionIx    byte
}

// pipeInformationNode is the driver's per-endpoint pipe record.
type pipeInformationNode struct {
	Type          int32
	ID            byte
	MaxPacketSize uint16
	Interval      byte
}

// notifyEvent is a raw notification delivered by the driver callback.
type notifyEvent struct {
	gpio  bool
	pipe  byte
	size  int
	gpio0 int32
	gpio1 int32
}

// driver is the narrow set of native calls this package depends on. The
// platform binding implements it on top of the vendor library; tests
// substitute an in-memory fake. All methods report a raw Status; translation
// to package errors happens in the callers.
type driver interface {
	createDeviceInfoList() (int, Status)
	getDeviceInfoList(count int) ([]deviceListNode, Status)

	create(serial string) (ftHandle, Status)
	closeHandle(h ftHandle) Status

	readPipe(h ftHandle, pipe byte, buf []byte) (int, Status)
	writePipe(h ftHandle, pipe byte, buf []byte) (int, Status)
	abortPipe(h ftHandle, pipe byte) Status
	pipeTimeout(h ftHandle, pipe byte) (time.Duration, Status)
	setPipeTimeout(h ftHandle, pipe byte, timeout time.Duration) Status

	deviceDescriptor(h ftHandle) (usbDeviceDescriptor, Status)
	configurationDescriptor(h ftHandle) (usbConfigDescriptor, Status)
	interfaceDescriptor(h ftHandle, index byte) (usbInterfaceDescriptor, Status)
	stringDescriptor(h ftHandle, index byte) (string, Status)
	pipeInformation(h ftHandle, iface, index byte) (pipeInformationNode, Status)

	setStreamPipe(h ftHandle, pipe byte, size uint32) Status
	clearStreamPipes(h ftHandle) Status

	initOverlapped(h ftHandle) (overlappedToken, Status)
	readPipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status
	writePipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status
	overlappedResult(h ftHandle, tok overlappedToken, wait bool) (int, Status)
	releaseOverlapped(h ftHandle, tok overlappedToken) Status

	enableGPIO(h ftHandle, mask, direction uint32) Status
	setGPIOPull(h ftHandle, mask, pull uint32) Status
	writeGPIO(h ftHandle, mask, data uint32) Status
	readGPIO(h ftHandle) (uint32, Status)

	setNotificationCallback(h ftHandle, cb func(notifyEvent)) Status
	clearNotificationCallback(h ftHandle)

	libraryVersion() (uint32, Status)
}

// openLock serializes open, close and enumeration calls into the native
// driver. The vendor library keeps internal shared state that is not safe
// under concurrent FT_Create/FT_Close, and enumeration rewrites the same
// device table. The lock is held only for the span of the native call,
// never for the lifetime of a handle, so I/O on unrelated devices is not
// blocked by another device opening or closing.
var openLock sync.Mutex

var (
	loadOnce  sync.Once
	loadedDrv driver
	loadErr   error
)

// nativeDriver returns the platform binding, loading the vendor library on
// first use.
func nativeDriver() (driver, error) {
	loadOnce.Do(func() {
		loadedDrv, loadErr = loadDriver()
	})
	return loadedDrv, loadErr
}
