package d3xx

import (
	"fmt"

	"github.com/Gurux/gxcommon-go"
)

// USBVersion is a BCD-encoded USB protocol version as reported by the
// device descriptor (for example 0x0300 for USB 3.0).
type USBVersion uint16

// Major version number.
func (v USBVersion) Major() int {
	return int(v >> 8)
}

// Minor version number.
func (v USBVersion) Minor() int {
	return int(v & 0xff)
}

func (v USBVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// ClassCodes are the USB class, subclass and protocol codes of a device or
// interface.
type ClassCodes struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// DeviceDescriptor is the standard USB device descriptor with its string
// descriptors already resolved.
type DeviceDescriptor struct {
	USB            USBVersion
	VID            uint16
	PID            uint16
	Codes          ClassCodes
	MaxPacketSize  int
	Manufacturer   string
	Product        string
	SerialNumber   string
	Configurations int
}

// DeviceDescriptor queries the device descriptor.
func (d *Device) DeviceDescriptor() (*DeviceDescriptor, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	raw, st := d.drv.deviceDescriptor(d.h)
	if st != StatusOK {
		return nil, statusError("FT_GetDeviceDescriptor", st)
	}
	manufacturer, err := d.descriptorString(raw.ManufacturerIx)
	if err != nil {
		return nil, err
	}
	product, err := d.descriptorString(raw.ProductIx)
	if err != nil {
		return nil, err
	}
	serial, err := d.descriptorString(raw.SerialIx)
	if err != nil {
		return nil, err
	}
	return &DeviceDescriptor{
		USB: USBVersion(raw.USB),
		VID: raw.VID,
		PID: raw.PID,
		Codes: ClassCodes{
			Class:    raw.Class,
			SubClass: raw.SubClass,
			Protocol: raw.Protocol,
		},
		MaxPacketSize:  int(raw.MaxPacketSize0),
		Manufacturer:   manufacturer,
		Product:        product,
		SerialNumber:   serial,
		Configurations: int(raw.Configurations),
	}, nil
}

// ConfigurationDescriptor describes the active USB configuration.
type ConfigurationDescriptor struct {
	Interfaces  int
	Value       uint8
	Description string
	// MaxPower is the bus power the configuration may draw, in milliamps.
	MaxPower     int
	SelfPowered  bool
	RemoteWakeup bool
}

// Attribute bits of the configuration descriptor.
const (
	configSelfPowered  = 0x40
	configRemoteWakeup = 0x20
)

// ConfigurationDescriptor queries the active configuration descriptor.
func (d *Device) ConfigurationDescriptor() (*ConfigurationDescriptor, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	raw, st := d.drv.configurationDescriptor(d.h)
	if st != StatusOK {
		return nil, statusError("FT_GetConfigurationDescriptor", st)
	}
	description, err := d.descriptorString(raw.DescriptionIx)
	if err != nil {
		return nil, err
	}
	return &ConfigurationDescriptor{
		Interfaces:  int(raw.Interfaces),
		Value:       raw.Value,
		Description: description,
		// The descriptor stores the limit in 2 mA units.
		MaxPower:     int(raw.MaxPower) * 2,
		SelfPowered:  raw.Attributes&configSelfPowered != 0,
		RemoteWakeup: raw.Attributes&configRemoteWakeup != 0,
	}, nil
}

// InterfaceDescriptor describes one interface of the active configuration.
type InterfaceDescriptor struct {
	Number           int
	AlternateSetting uint8
	Endpoints        int
	Codes            ClassCodes
	Description      string
}

// InterfaceDescriptor queries the descriptor of the interface at the given
// index within the active configuration.
func (d *Device) InterfaceDescriptor(index uint8) (*InterfaceDescriptor, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	raw, st := d.drv.interfaceDescriptor(d.h, index)
	if st != StatusOK {
		return nil, statusError("FT_GetInterfaceDescriptor", st)
	}
	description, err := d.descriptorString(raw.DescriptionIx)
	if err != nil {
		return nil, err
	}
	return &InterfaceDescriptor{
		Number:           int(raw.Number),
		AlternateSetting: raw.AlternateSetting,
		Endpoints:        int(raw.Endpoints),
		Codes: ClassCodes{
			Class:    raw.Class,
			SubClass: raw.SubClass,
			Protocol: raw.Protocol,
		},
		Description: description,
	}, nil
}

// descriptorString resolves a string descriptor index. Index zero means the
// device carries no string for the field.
func (d *Device) descriptorString(index byte) (string, error) {
	if index == 0 {
		return "", nil
	}
	s, st := d.drv.stringDescriptor(d.h, index)
	if st != StatusOK {
		return "", statusError("FT_GetStringDescriptor", st)
	}
	return s, nil
}

// PipeType classifies a USB endpoint.
type PipeType int

const (
	PipeTypeControl PipeType = iota
	PipeTypeIsochronous
	PipeTypeBulk
	PipeTypeInterrupt
)

func (t PipeType) String() string {
	switch t {
	case PipeTypeControl:
		return "Control"
	case PipeTypeIsochronous:
		return "Isochronous"
	case PipeTypeBulk:
		return "Bulk"
	case PipeTypeInterrupt:
		return "Interrupt"
	default:
		return fmt.Sprintf("PipeType(%d)", int(t))
	}
}

// PipeInfo describes one pipe as reported by the driver.
type PipeInfo struct {
	Type          PipeType
	Pipe          Pipe
	MaxPacketSize int
	Interval      uint8
}

// dataInterface is the interface of the FT60x configuration that carries
// the data pipes; interface 0 holds the control/notification endpoints.
const dataInterface = 1

// Information queries the driver's pipe record for this pipe: transfer
// type, maximum packet size and polling interval.
func (p *PipeHandle) Information() (PipeInfo, error) {
	if err := p.d.ensureOpen(); err != nil {
		return PipeInfo{}, err
	}
	if !p.id.valid() {
		return PipeInfo{}, fmt.Errorf("%w: pipe 0x%02x", gxcommon.ErrInvalidArgument, byte(p.id))
	}
	ifc, err := p.d.InterfaceDescriptor(dataInterface)
	if err != nil {
		return PipeInfo{}, err
	}
	// The driver enumerates pipes per interface by endpoint index; find the
	// record whose endpoint address matches this pipe.
	for i := 0; i < ifc.Endpoints; i++ {
		node, st := p.d.drv.pipeInformation(p.d.h, dataInterface, byte(i))
		if st != StatusOK {
			return PipeInfo{}, statusError("FT_GetPipeInformation", st)
		}
		if node.ID == byte(p.id) {
			return PipeInfo{
				Type:          PipeType(node.Type),
				Pipe:          p.id,
				MaxPacketSize: int(node.MaxPacketSize),
				Interval:      node.Interval,
			}, nil
		}
	}
	// The configuration does not expose this endpoint at all.
	return PipeInfo{}, statusError("FT_GetPipeInformation", StatusDeviceNotFound)
}
