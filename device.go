package d3xx

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Device flags reported by enumeration.
const (
	flagOpened     = 0x1
	flagHiSpeed    = 0x2
	flagSuperSpeed = 0x4
)

// DeviceType identifies the FT60x family member.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeFT600
	DeviceTypeFT601
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeFT600:
		return "FT600"
	case DeviceTypeFT601:
		return "FT601"
	default:
		return "Unknown"
	}
}

func deviceTypeFrom(value uint32) DeviceType {
	switch value {
	case 600:
		return DeviceTypeFT600
	case 601:
		return DeviceTypeFT601
	default:
		return DeviceTypeUnknown
	}
}

// DeviceInfo describes one connected device as reported by enumeration.
// It is a plain snapshot; it owns no native resource and stays valid after
// the device is unplugged (opening it will then fail).
type DeviceInfo struct {
	Serial      string
	Description string
	VID         uint16
	PID         uint16
	LocationID  uint32
	Type        DeviceType

	flags uint32
	index int
	drv   driver
}

// Index returns the position of the device in the enumeration snapshot.
func (i DeviceInfo) Index() int {
	return i.index
}

// IsOpen reports whether the device was held open by some process at
// enumeration time.
func (i DeviceInfo) IsOpen() bool {
	return i.flags&flagOpened != 0
}

// IsHiSpeed reports whether the device enumerated as a USB 2.0 hi-speed
// device.
func (i DeviceInfo) IsHiSpeed() bool {
	return i.flags&flagHiSpeed != 0
}

// IsSuperSpeed reports whether the device enumerated as a USB 3.0
// super-speed device.
func (i DeviceInfo) IsSuperSpeed() bool {
	return i.flags&flagSuperSpeed != 0
}

// Open opens the described device by serial number.
func (i DeviceInfo) Open() (*Device, error) {
	return openDevice(i.drv, i.Serial)
}

// ListDevices enumerates the connected FT60x devices. It returns an empty
// slice, not an error, when nothing is connected.
func ListDevices() ([]DeviceInfo, error) {
	drv, err := nativeDriver()
	if err != nil {
		return nil, err
	}
	return listDevices(drv)
}

func listDevices(drv driver) ([]DeviceInfo, error) {
	// Building and reading the device table are two separate native calls;
	// the count can change in between if a device is plugged or unplugged.
	// Both calls happen under openLock and the shorter of the two lengths
	// wins, so a stale count never causes an out-of-range read.
	openLock.Lock()
	count, st := drv.createDeviceInfoList()
	if st != StatusOK {
		openLock.Unlock()
		return nil, statusError("FT_CreateDeviceInfoList", st)
	}
	if count == 0 {
		openLock.Unlock()
		return []DeviceInfo{}, nil
	}
	nodes, st := drv.getDeviceInfoList(count)
	openLock.Unlock()
	if st != StatusOK {
		return nil, statusError("FT_GetDeviceInfoList", st)
	}
	if len(nodes) > count {
		nodes = nodes[:count]
	}
	infos := make([]DeviceInfo, 0, len(nodes))
	for i, n := range nodes {
		infos = append(infos, DeviceInfo{
			Serial:      n.Serial,
			Description: n.Description,
			VID:         uint16(n.ID >> 16),
			PID:         uint16(n.ID),
			LocationID:  n.LocID,
			Type:        deviceTypeFrom(n.Type),
			flags:       n.Flags,
			index:       i,
			drv:         drv,
		})
	}
	return infos, nil
}

// Device is an open handle to one FT60x device. It owns the native resource
// and releases it exactly once, no matter how many times or from how many
// goroutines Close is called. Pipes, GPIO access and notification waits are
// derived from the handle and fail with ErrDeviceClosed once it is closed.
type Device struct {
	drv    driver
	h      ftHandle
	serial string

	closed atomic.Bool
	done   chan struct{}

	// One mutex per pipe: same-pipe transfers are serialized here, while
	// different pipes of the same handle proceed concurrently.
	pipeMu [pipeCount]sync.Mutex

	notifyOnce       sync.Once
	notifySt         Status
	notifyRegistered atomic.Bool
	notifyCh         chan Notification
	waiting          atomic.Bool
}

// Open opens the device with the given serial number. The native open call
// runs under the process-wide open lock; the lock is released before Open
// returns.
func Open(serial string) (*Device, error) {
	drv, err := nativeDriver()
	if err != nil {
		return nil, err
	}
	return openDevice(drv, serial)
}

func openDevice(drv driver, serial string) (*Device, error) {
	openLock.Lock()
	h, st := drv.create(serial)
	openLock.Unlock()
	if st != StatusOK {
		return nil, statusError("FT_Create", st)
	}
	if h == 0 {
		// Some driver versions report success with a null handle when the
		// device disappeared between enumeration and open.
		return nil, fmt.Errorf("FT_Create: %w", ErrDeviceNotFound)
	}
	return &Device{
		drv:      drv,
		h:        h,
		serial:   serial,
		done:     make(chan struct{}),
		notifyCh: make(chan Notification, 16),
	}, nil
}

// Serial returns the serial number the device was opened with.
func (d *Device) Serial() string {
	return d.serial
}

// IsOpen reports whether the handle is still open.
func (d *Device) IsOpen() bool {
	return !d.closed.Load()
}

// Close releases the native handle. It is safe to call concurrently and
// repeatedly; only the first call reaches the driver. Double-closing the
// native handle corrupts driver state on some versions, so the closed flag
// is checked-and-set atomically before any native call.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(d.done)
	if d.notifyRegistered.Load() {
		d.drv.clearNotificationCallback(d.h)
	}
	openLock.Lock()
	st := d.drv.closeHandle(d.h)
	openLock.Unlock()
	return statusError("FT_Close", st)
}

// ensureOpen fails fast, without reaching the native layer, once the device
// has been closed.
func (d *Device) ensureOpen() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return nil
}

// Pipe returns a handle to the given pipe of this device. The pipe does not
// keep the device alive; operations on it fail once the device is closed.
func (d *Device) Pipe(p Pipe) *PipeHandle {
	return &PipeHandle{d: d, id: p}
}

// The FT60x exposes two GPIO pins.
const gpioPinCount = 2

// GPIOPin selects one of the device's GPIO pins.
type GPIOPin uint8

const (
	GPIOPin0 GPIOPin = 0
	GPIOPin1 GPIOPin = 1
)

// GPIODirection configures a pin as input or output.
type GPIODirection uint8

const (
	GPIOInput  GPIODirection = 0
	GPIOOutput GPIODirection = 1
)

// GPIOLevel is the logic level of a pin.
type GPIOLevel uint8

const (
	GPIOLow  GPIOLevel = 0
	GPIOHigh GPIOLevel = 1
)

// GPIOPull selects the internal pull resistor mode (Rev. B parts or later).
type GPIOPull uint8

const (
	GPIOPullDown      GPIOPull = 0
	GPIOHighImpedance GPIOPull = 1
	GPIOPullUp        GPIOPull = 2
)

func checkGPIOPin(pin GPIOPin) error {
	if pin >= gpioPinCount {
		return fmt.Errorf("%w: %d", ErrInvalidGpioPin, pin)
	}
	return nil
}

// EnableGPIO enables the pin in the given direction. Once enabled, a pin
// cannot be disabled again.
func (d *Device) EnableGPIO(pin GPIOPin, direction GPIODirection) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	if err := checkGPIOPin(pin); err != nil {
		return err
	}
	st := d.drv.enableGPIO(d.h, 1<<pin, uint32(direction)<<pin)
	return statusError("FT_EnableGPIO", st)
}

// SetGPIOPull configures the internal pull resistor of the pin.
func (d *Device) SetGPIOPull(pin GPIOPin, pull GPIOPull) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	if err := checkGPIOPin(pin); err != nil {
		return err
	}
	st := d.drv.setGPIOPull(d.h, 1<<pin, uint32(pull)<<pin)
	return statusError("FT_SetGPIOPull", st)
}

// SetGPIO drives the pin to the given level.
func (d *Device) SetGPIO(pin GPIOPin, level GPIOLevel) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	if err := checkGPIOPin(pin); err != nil {
		return err
	}
	st := d.drv.writeGPIO(d.h, 1<<pin, uint32(level)<<pin)
	return statusError("FT_WriteGPIO", st)
}

// GetGPIO reads the current level of the pin.
func (d *Device) GetGPIO(pin GPIOPin) (GPIOLevel, error) {
	if err := d.ensureOpen(); err != nil {
		return GPIOLow, err
	}
	if err := checkGPIOPin(pin); err != nil {
		return GPIOLow, err
	}
	value, st := d.drv.readGPIO(d.h)
	if st != StatusOK {
		return GPIOLow, statusError("FT_ReadGPIO", st)
	}
	return GPIOLevel((value >> pin) & 1), nil
}

// Version is a D3XX library or driver version number.
type Version struct {
	raw uint32
}

// Major version number.
func (v Version) Major() uint8 {
	return uint8(v.raw >> 16)
}

// Minor version number.
func (v Version) Minor() uint8 {
	return uint8(v.raw >> 8)
}

// Build version number.
func (v Version) Build() uint16 {
	return uint16(v.raw)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Build())
}

// LibraryVersion returns the version of the D3XX library. This is not the
// driver version.
func LibraryVersion() (Version, error) {
	drv, err := nativeDriver()
	if err != nil {
		return Version{}, err
	}
	raw, st := drv.libraryVersion()
	if st != StatusOK {
		return Version{}, statusError("FT_GetLibraryVersion", st)
	}
	return Version{raw: raw}, nil
}
