//go:build windows

package d3xx

import (
	"bytes"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	ftd3xx = windows.NewLazySystemDLL("FTD3XX.dll")

	procCreateDeviceInfoList      = ftd3xx.NewProc("FT_CreateDeviceInfoList")
	procGetDeviceInfoList         = ftd3xx.NewProc("FT_GetDeviceInfoList")
	procCreate                    = ftd3xx.NewProc("FT_Create")
	procClose                     = ftd3xx.NewProc("FT_Close")
	procReadPipe                  = ftd3xx.NewProc("FT_ReadPipe")
	procWritePipe                 = ftd3xx.NewProc("FT_WritePipe")
	procAbortPipe                 = ftd3xx.NewProc("FT_AbortPipe")
	procGetDeviceDescriptor       = ftd3xx.NewProc("FT_GetDeviceDescriptor")
	procGetConfigDescriptor       = ftd3xx.NewProc("FT_GetConfigurationDescriptor")
	procGetInterfaceDescriptor    = ftd3xx.NewProc("FT_GetInterfaceDescriptor")
	procGetStringDescriptor       = ftd3xx.NewProc("FT_GetStringDescriptor")
	procGetPipeInformation        = ftd3xx.NewProc("FT_GetPipeInformation")
	procSetStreamPipe             = ftd3xx.NewProc("FT_SetStreamPipe")
	procClearStreamPipe           = ftd3xx.NewProc("FT_ClearStreamPipe")
	procGetPipeTimeout            = ftd3xx.NewProc("FT_GetPipeTimeout")
	procSetPipeTimeout            = ftd3xx.NewProc("FT_SetPipeTimeout")
	procInitializeOverlapped      = ftd3xx.NewProc("FT_InitializeOverlapped")
	procGetOverlappedResult       = ftd3xx.NewProc("FT_GetOverlappedResult")
	procReleaseOverlapped         = ftd3xx.NewProc("FT_ReleaseOverlapped")
	procEnableGPIO                = ftd3xx.NewProc("FT_EnableGPIO")
	procSetGPIOPull               = ftd3xx.NewProc("FT_SetGPIOPull")
	procWriteGPIO                 = ftd3xx.NewProc("FT_WriteGPIO")
	procReadGPIO                  = ftd3xx.NewProc("FT_ReadGPIO")
	procSetNotificationCallback   = ftd3xx.NewProc("FT_SetNotificationCallback")
	procClearNotificationCallback = ftd3xx.NewProc("FT_ClearNotificationCallback")
	procGetLibraryVersion         = ftd3xx.NewProc("FT_GetLibraryVersion")
)

// FT_Create open-by flags.
const openBySerialNumber = 0x00000001

// Notification callback types from E_FT_NOTIFICATION_CALLBACK_TYPE.
const (
	notifyCallbackTypeData = 0
	notifyCallbackTypeGPIO = 1
)

// ftDeviceListInfoNode mirrors FT_DEVICE_LIST_INFO_NODE in FTD3XX.h.
type ftDeviceListInfoNode struct {
	flags  uint32
	typ    uint32
	id     uint32
	locID  uint32
	serial [16]byte
	desc   [32]byte
	handle uintptr
}

// ftDeviceDescriptor mirrors FT_DEVICE_DESCRIPTOR (the standard USB device
// descriptor layout).
type ftDeviceDescriptor struct {
	bLength            byte
	bDescriptorType    byte
	bcdUSB             uint16
	bDeviceClass       byte
	bDeviceSubClass    byte
	bDeviceProtocol    byte
	bMaxPacketSize0    byte
	idVendor           uint16
	idProduct          uint16
	bcdDevice          uint16
	iManufacturer      byte
	iProduct           byte
	iSerialNumber      byte
	bNumConfigurations byte
}

// ftConfigurationDescriptor mirrors FT_CONFIGURATION_DESCRIPTOR.
type ftConfigurationDescriptor struct {
	bLength             byte
	bDescriptorType     byte
	wTotalLength        uint16
	bNumInterfaces      byte
	bConfigurationValue byte
	iConfiguration      byte
	bmAttributes        byte
	maxPower            byte
}

// ftInterfaceDescriptor mirrors FT_INTERFACE_DESCRIPTOR.
type ftInterfaceDescriptor struct {
	bLength            byte
	bDescriptorType    byte
	bInterfaceNumber   byte
	bAlternateSetting  byte
	bNumEndpoints      byte
	bInterfaceClass    byte
	bInterfaceSubClass byte
	bInterfaceProtocol byte
	iInterface         byte
}

// ftStringDescriptor mirrors FT_STRING_DESCRIPTOR. szString holds UTF-16
// code units; bLength counts the two header bytes plus the used units.
type ftStringDescriptor struct {
	bLength         byte
	bDescriptorType byte
	szString        [256]uint16
}

// ftPipeInformation mirrors FT_PIPE_INFORMATION.
type ftPipeInformation struct {
	pipeType      int32
	pipeID        byte
	maxPacketSize uint16
	interval      byte
}

// ftNotificationData mirrors FT_NOTIFICATION_CALLBACK_INFO_DATA.
type ftNotificationData struct {
	recvLength uint32
	endpoint   byte
}

// ftNotificationGPIO mirrors FT_NOTIFICATION_CALLBACK_INFO_GPIO.
type ftNotificationGPIO struct {
	gpio0 int32
	gpio1 int32
}

// winDriver talks to the vendor FTD3XX.dll. Every exported D3XX function
// returns an FT_STATUS in the first result register.
type winDriver struct {
	cbMu sync.Mutex
	cbs  map[ftHandle]func(notifyEvent)
}

// winDrv is the loaded binding; the notification trampoline needs to reach
// it from a plain function pointer.
var winDrv *winDriver

func loadDriver() (driver, error) {
	if err := ftd3xx.Load(); err != nil {
		return nil, fmt.Errorf("load FTD3XX.dll: %w", err)
	}
	winDrv = &winDriver{cbs: make(map[ftHandle]func(notifyEvent))}
	return winDrv, nil
}

// notifyTrampoline is the single native callback registered with the driver.
// The context argument carries the device handle, which selects the Go
// callback to invoke.
var notifyTrampoline = windows.NewCallback(func(ctx, cbType, info uintptr) uintptr {
	w := winDrv
	if w == nil || info == 0 {
		return 0
	}
	w.cbMu.Lock()
	cb := w.cbs[ftHandle(ctx)]
	w.cbMu.Unlock()
	if cb == nil {
		return 0
	}
	switch cbType {
	case notifyCallbackTypeData:
		data := (*ftNotificationData)(unsafe.Pointer(info))
		cb(notifyEvent{pipe: data.endpoint, size: int(data.recvLength)})
	case notifyCallbackTypeGPIO:
		gpio := (*ftNotificationGPIO)(unsafe.Pointer(info))
		cb(notifyEvent{gpio: true, gpio0: gpio.gpio0, gpio1: gpio.gpio1})
	}
	return 0
})

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (w *winDriver) createDeviceInfoList() (int, Status) {
	var n uint32
	r, _, _ := procCreateDeviceInfoList.Call(uintptr(unsafe.Pointer(&n)))
	return int(n), Status(r)
}

func (w *winDriver) getDeviceInfoList(count int) ([]deviceListNode, Status) {
	if count <= 0 {
		return nil, StatusOK
	}
	raw := make([]ftDeviceListInfoNode, count)
	var n uint32
	r, _, _ := procGetDeviceInfoList.Call(
		uintptr(unsafe.Pointer(&raw[0])),
		uintptr(unsafe.Pointer(&n)),
	)
	if Status(r) != StatusOK {
		return nil, Status(r)
	}
	if int(n) < len(raw) {
		raw = raw[:n]
	}
	nodes := make([]deviceListNode, len(raw))
	for i, v := range raw {
		nodes[i] = deviceListNode{
			Flags:       v.flags,
			Type:        v.typ,
			ID:          v.id,
			LocID:       v.locID,
			Serial:      cString(v.serial[:]),
			Description: cString(v.desc[:]),
		}
	}
	return nodes, StatusOK
}

func (w *winDriver) create(serial string) (ftHandle, Status) {
	cs, err := windows.BytePtrFromString(serial)
	if err != nil {
		return 0, StatusInvalidArgs
	}
	var h uintptr
	r, _, _ := procCreate.Call(
		uintptr(unsafe.Pointer(cs)),
		openBySerialNumber,
		uintptr(unsafe.Pointer(&h)),
	)
	return ftHandle(h), Status(r)
}

func (w *winDriver) closeHandle(h ftHandle) Status {
	r, _, _ := procClose.Call(uintptr(h))
	return Status(r)
}

func bufPtr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (w *winDriver) readPipe(h ftHandle, pipe byte, buf []byte) (int, Status) {
	var n uint32
	r, _, _ := procReadPipe.Call(
		uintptr(h),
		uintptr(pipe),
		bufPtr(buf),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
		0,
	)
	return int(n), Status(r)
}

func (w *winDriver) writePipe(h ftHandle, pipe byte, buf []byte) (int, Status) {
	var n uint32
	r, _, _ := procWritePipe.Call(
		uintptr(h),
		uintptr(pipe),
		bufPtr(buf),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
		0,
	)
	return int(n), Status(r)
}

func (w *winDriver) abortPipe(h ftHandle, pipe byte) Status {
	r, _, _ := procAbortPipe.Call(uintptr(h), uintptr(pipe))
	return Status(r)
}

func (w *winDriver) deviceDescriptor(h ftHandle) (usbDeviceDescriptor, Status) {
	var raw ftDeviceDescriptor
	r, _, _ := procGetDeviceDescriptor.Call(uintptr(h), uintptr(unsafe.Pointer(&raw)))
	if Status(r) != StatusOK {
		return usbDeviceDescriptor{}, Status(r)
	}
	return usbDeviceDescriptor{
		USB:            raw.bcdUSB,
		Class:          raw.bDeviceClass,
		SubClass:       raw.bDeviceSubClass,
		Protocol:       raw.bDeviceProtocol,
		MaxPacketSize0: raw.bMaxPacketSize0,
		VID:            raw.idVendor,
		PID:            raw.idProduct,
		Release:        raw.bcdDevice,
		ManufacturerIx: raw.iManufacturer,
		ProductIx:      raw.iProduct,
		SerialIx:       raw.iSerialNumber,
		Configurations: raw.bNumConfigurations,
	}, StatusOK
}

func (w *winDriver) configurationDescriptor(h ftHandle) (usbConfigDescriptor, Status) {
	var raw ftConfigurationDescriptor
	r, _, _ := procGetConfigDescriptor.Call(uintptr(h), uintptr(unsafe.Pointer(&raw)))
	if Status(r) != StatusOK {
		return usbConfigDescriptor{}, Status(r)
	}
	return usbConfigDescriptor{
		Interfaces:    raw.bNumInterfaces,
		Value:         raw.bConfigurationValue,
		DescriptionIx: raw.iConfiguration,
		Attributes:    raw.bmAttributes,
		MaxPower:      raw.maxPower,
	}, StatusOK
}

func (w *winDriver) interfaceDescriptor(h ftHandle, index byte) (usbInterfaceDescriptor, Status) {
	var raw ftInterfaceDescriptor
	r, _, _ := procGetInterfaceDescriptor.Call(
		uintptr(h),
		uintptr(index),
		uintptr(unsafe.Pointer(&raw)),
	)
	if Status(r) != StatusOK {
		return usbInterfaceDescriptor{}, Status(r)
	}
	return usbInterfaceDescriptor{
		Number:           raw.bInterfaceNumber,
		AlternateSetting: raw.bAlternateSetting,
		Endpoints:        raw.bNumEndpoints,
		Class:            raw.bInterfaceClass,
		SubClass:         raw.bInterfaceSubClass,
		Protocol:         raw.bInterfaceProtocol,
		DescriptionIx:    raw.iInterface,
	}, StatusOK
}

func (w *winDriver) stringDescriptor(h ftHandle, index byte) (string, Status) {
	var raw ftStringDescriptor
	r, _, _ := procGetStringDescriptor.Call(
		uintptr(h),
		uintptr(index),
		uintptr(unsafe.Pointer(&raw)),
	)
	if Status(r) != StatusOK {
		return "", Status(r)
	}
	return windows.UTF16ToString(raw.szString[:]), StatusOK
}

func (w *winDriver) pipeInformation(h ftHandle, iface, index byte) (pipeInformationNode, Status) {
	var raw ftPipeInformation
	r, _, _ := procGetPipeInformation.Call(
		uintptr(h),
		uintptr(iface),
		uintptr(index),
		uintptr(unsafe.Pointer(&raw)),
	)
	if Status(r) != StatusOK {
		return pipeInformationNode{}, Status(r)
	}
	return pipeInformationNode{
		Type:          raw.pipeType,
		ID:            raw.pipeID,
		MaxPacketSize: raw.maxPacketSize,
		Interval:      raw.interval,
	}, StatusOK
}

func (w *winDriver) setStreamPipe(h ftHandle, pipe byte, size uint32) Status {
	r, _, _ := procSetStreamPipe.Call(uintptr(h), 0, 0, uintptr(pipe), uintptr(size))
	return Status(r)
}

func (w *winDriver) clearStreamPipes(h ftHandle) Status {
	// allWritePipes/allReadPipes TRUE clears every pipe in one call; the
	// pipe argument is then ignored.
	r, _, _ := procClearStreamPipe.Call(uintptr(h), 1, 1, 0)
	return Status(r)
}

func (w *winDriver) pipeTimeout(h ftHandle, pipe byte) (time.Duration, Status) {
	var ms uint32
	r, _, _ := procGetPipeTimeout.Call(uintptr(h), uintptr(pipe), uintptr(unsafe.Pointer(&ms)))
	return time.Duration(ms) * time.Millisecond, Status(r)
}

func (w *winDriver) setPipeTimeout(h ftHandle, pipe byte, timeout time.Duration) Status {
	r, _, _ := procSetPipeTimeout.Call(uintptr(h), uintptr(pipe), uintptr(timeout/time.Millisecond))
	return Status(r)
}

func (w *winDriver) initOverlapped(h ftHandle) (overlappedToken, Status) {
	ov := new(windows.Overlapped)
	r, _, _ := procInitializeOverlapped.Call(uintptr(h), uintptr(unsafe.Pointer(ov)))
	if Status(r) != StatusOK {
		return nil, Status(r)
	}
	return ov, StatusOK
}

func (w *winDriver) readPipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status {
	ov := tok.(*windows.Overlapped)
	var n uint32
	r, _, _ := procReadPipe.Call(
		uintptr(h),
		uintptr(pipe),
		bufPtr(buf),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
		uintptr(unsafe.Pointer(ov)),
	)
	return Status(r)
}

func (w *winDriver) writePipeAsync(h ftHandle, pipe byte, buf []byte, tok overlappedToken) Status {
	ov := tok.(*windows.Overlapped)
	var n uint32
	r, _, _ := procWritePipe.Call(
		uintptr(h),
		uintptr(pipe),
		bufPtr(buf),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
		uintptr(unsafe.Pointer(ov)),
	)
	return Status(r)
}

func (w *winDriver) overlappedResult(h ftHandle, tok overlappedToken, wait bool) (int, Status) {
	ov := tok.(*windows.Overlapped)
	var n uint32
	var block uintptr
	if wait {
		block = 1
	}
	r, _, _ := procGetOverlappedResult.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(ov)),
		uintptr(unsafe.Pointer(&n)),
		block,
	)
	return int(n), Status(r)
}

func (w *winDriver) releaseOverlapped(h ftHandle, tok overlappedToken) Status {
	ov := tok.(*windows.Overlapped)
	r, _, _ := procReleaseOverlapped.Call(uintptr(h), uintptr(unsafe.Pointer(ov)))
	return Status(r)
}

func (w *winDriver) enableGPIO(h ftHandle, mask, direction uint32) Status {
	r, _, _ := procEnableGPIO.Call(uintptr(h), uintptr(mask), uintptr(direction))
	return Status(r)
}

func (w *winDriver) setGPIOPull(h ftHandle, mask, pull uint32) Status {
	r, _, _ := procSetGPIOPull.Call(uintptr(h), uintptr(mask), uintptr(pull))
	return Status(r)
}

func (w *winDriver) writeGPIO(h ftHandle, mask, data uint32) Status {
	r, _, _ := procWriteGPIO.Call(uintptr(h), uintptr(mask), uintptr(data))
	return Status(r)
}

func (w *winDriver) readGPIO(h ftHandle) (uint32, Status) {
	var value uint32
	r, _, _ := procReadGPIO.Call(uintptr(h), uintptr(unsafe.Pointer(&value)))
	return value, Status(r)
}

func (w *winDriver) setNotificationCallback(h ftHandle, cb func(notifyEvent)) Status {
	w.cbMu.Lock()
	w.cbs[h] = cb
	w.cbMu.Unlock()
	r, _, _ := procSetNotificationCallback.Call(uintptr(h), notifyTrampoline, uintptr(h))
	if Status(r) != StatusOK {
		w.cbMu.Lock()
		delete(w.cbs, h)
		w.cbMu.Unlock()
	}
	return Status(r)
}

func (w *winDriver) clearNotificationCallback(h ftHandle) {
	_, _, _ = procClearNotificationCallback.Call(uintptr(h))
	w.cbMu.Lock()
	delete(w.cbs, h)
	w.cbMu.Unlock()
}

func (w *winDriver) libraryVersion() (uint32, Status) {
	var version uint32
	r, _, _ := procGetLibraryVersion.Call(uintptr(unsafe.Pointer(&version)))
	return version, Status(r)
}
