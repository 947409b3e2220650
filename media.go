package d3xx

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gurux/gxcommon-go"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// readChunkSize is the buffer handed to the reader goroutine per transfer.
const readChunkSize = 4096

// Media exposes an FT60x device through the common IGXMedia-style contract:
// open/close a connection, send/receive data (optionally framed by an EOP
// marker), and emit events for received data, errors, tracing and state
// changes. It drives one IN pipe and one OUT pipe of the device; the full
// pipe/GPIO/notification surface stays available through Device.
type Media struct {
	// Serial selects the device to open. Empty opens the first device
	// found by enumeration.
	Serial string

	readPipe  Pipe
	writePipe Pipe
	eop       any
	// The trace level specifies which types of trace messages are emitted.
	traceLevel gxcommon.TraceLevel

	mu sync.RWMutex
	wg sync.WaitGroup

	stop        chan struct{}
	synchronous bool

	// Written by Send and by the reader goroutine while getters may run on
	// any goroutine, hence atomic.
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	//Called when the Media state is changed.
	onState gxcommon.MediaStateHandler

	//Called when new data is received.
	onReceive gxcommon.ReceivedEventHandler

	//Called when the Media is sending or receiving data.
	onTrace gxcommon.TraceEventHandler

	//Called when an error occurs.
	onErr gxcommon.ErrorEventHandler

	//Sync settings.
	receivedSize int
	received     *mediaBuffer

	dev *Device
	// Test seam; nil means the platform binding.
	drv driver

	// Printer for localized messages.
	p *message.Printer
}

// NewMedia creates a Media for the device with the given serial number,
// receiving through readPipe and sending through writePipe. An empty serial
// opens the first device found.
func NewMedia(serial string, readPipe, writePipe Pipe) *Media {
	m := &Media{Serial: serial, readPipe: readPipe, writePipe: writePipe}
	m.Localize(language.AmericanEnglish)
	m.received = newMediaBuffer()
	return m
}

// ReadPipe returns the IN pipe the media receives through.
func (m *Media) ReadPipe() Pipe {
	return m.readPipe
}

// SetReadPipe sets the IN pipe the media receives through. It has no effect
// on an open connection until it is reopened.
func (m *Media) SetReadPipe(value Pipe) error {
	if !value.valid() || !value.IsIn() {
		return fmt.Errorf("%w: %v is not an IN pipe", gxcommon.ErrInvalidArgument, value)
	}
	m.readPipe = value
	return nil
}

// WritePipe returns the OUT pipe the media sends through.
func (m *Media) WritePipe() Pipe {
	return m.writePipe
}

// SetWritePipe sets the OUT pipe the media sends through.
func (m *Media) SetWritePipe(value Pipe) error {
	if !value.valid() || !value.IsOut() {
		return fmt.Errorf("%w: %v is not an OUT pipe", gxcommon.ErrInvalidArgument, value)
	}
	m.writePipe = value
	return nil
}

// Device returns the device handle of the last Open, or nil when the media
// was never opened.
func (m *Media) Device() *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dev
}

// String implements IGXMedia
func (m *Media) String() string {
	return fmt.Sprintf("D3XX %s %v %v", m.Serial, m.readPipe, m.writePipe)
}

// GetName implements IGXMedia
func (m *Media) GetName() string {
	return m.Serial
}

// IsOpen implements IGXMedia
func (m *Media) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dev != nil && m.dev.IsOpen()
}

// Copy implements IGXMedia
func (m *Media) Copy(target gxcommon.IGXMedia) error {
	switch dst := target.(type) {
	case *Media:
		dst.Serial = m.Serial
		dst.readPipe = m.readPipe
		dst.writePipe = m.writePipe
		dst.traceLevel = m.traceLevel
		dst.eop = m.eop
	default:
		return fmt.Errorf("copy: target is %T; want *Media", target)
	}
	return nil
}

// GetMediaType implements IGXMedia
func (m *Media) GetMediaType() string {
	return "D3xx"
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// GetSettings implements IGXMedia
func (m *Media) GetSettings() string {
	var b strings.Builder
	if m.Serial != "" {
		fmt.Fprintf(&b, "<Serial>%s</Serial>\n", xmlEscape(m.Serial))
	}
	if m.readPipe != 0 {
		fmt.Fprintf(&b, "<ReadPipe>%v</ReadPipe>\n", m.readPipe)
	}
	if m.writePipe != 0 {
		fmt.Fprintf(&b, "<WritePipe>%v</WritePipe>\n", m.writePipe)
	}
	return b.String()
}

// SetSettings implements IGXMedia
func (m *Media) SetSettings(value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	dec := xml.NewDecoder(strings.NewReader("<root>" + value + "</root>"))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "Serial":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			m.Serial = v
		case "ReadPipe":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			pipe, err := PipeParse(v)
			if err != nil {
				return err
			}
			if err := m.SetReadPipe(pipe); err != nil {
				return err
			}
		case "WritePipe":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			pipe, err := PipeParse(v)
			if err != nil {
				return err
			}
			if err := m.SetWritePipe(pipe); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetSynchronous implements IGXMedia
func (m *Media) GetSynchronous() func() {
	m.mu.Lock()
	m.synchronous = true
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.synchronous = false
		m.mu.Unlock()
	}
}

// IsSynchronous implements IGXMedia
func (m *Media) IsSynchronous() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synchronous
}

// ResetSynchronousBuffer implements IGXMedia
func (m *Media) ResetSynchronousBuffer() {
	m.received.reset()
}

// GetBytesSent implements IGXMedia
func (m *Media) GetBytesSent() uint64 {
	return m.bytesSent.Load()
}

// GetBytesReceived implements IGXMedia
func (m *Media) GetBytesReceived() uint64 {
	return m.bytesReceived.Load()
}

// ResetByteCounters implements IGXMedia
func (m *Media) ResetByteCounters() {
	m.bytesSent.Store(0)
	m.bytesReceived.Store(0)
}

// GetBytesToRead returns the number of buffered bytes available to a
// synchronous Receive.
func (m *Media) GetBytesToRead() (int, error) {
	return m.received.size(), nil
}

// GetBytesToWrite returns the number of bytes queued for sending. Writes to
// the device are not buffered by this media.
func (m *Media) GetBytesToWrite() (int, error) {
	return 0, nil
}

// Validate implements IGXMedia
func (m *Media) Validate() error {
	if !m.readPipe.valid() || !m.readPipe.IsIn() {
		return errors.New(m.p.Sprintf("msg.invalid_read_pipe"))
	}
	if !m.writePipe.valid() || !m.writePipe.IsOut() {
		return errors.New(m.p.Sprintf("msg.invalid_write_pipe"))
	}
	return nil
}

// SetEop implements IGXMedia
func (m *Media) SetEop(eop any) {
	m.eop = eop
}

// GetEop implements IGXMedia
func (m *Media) GetEop() any {
	return m.eop
}

// GetTrace implements IGXMedia
func (m *Media) GetTrace() gxcommon.TraceLevel {
	return m.traceLevel
}

// SetTrace implements IGXMedia
func (m *Media) SetTrace(traceLevel gxcommon.TraceLevel) error {
	m.traceLevel = traceLevel
	return nil
}

// SetOnReceived implements IGXMedia
func (m *Media) SetOnReceived(value gxcommon.ReceivedEventHandler) {
	m.mu.Lock()
	m.onReceive = value
	m.mu.Unlock()
}

// SetOnError implements IGXMedia
func (m *Media) SetOnError(value gxcommon.ErrorEventHandler) {
	m.mu.Lock()
	m.onErr = value
	m.mu.Unlock()
}

// SetOnMediaStateChange implements IGXMedia
func (m *Media) SetOnMediaStateChange(value gxcommon.MediaStateHandler) {
	m.mu.Lock()
	m.onState = value
	m.mu.Unlock()
}

// SetOnTrace implements IGXMedia
func (m *Media) SetOnTrace(value gxcommon.TraceEventHandler) {
	m.mu.Lock()
	m.onTrace = value
	m.mu.Unlock()
}

func (m *Media) openDevice() (*Device, error) {
	drv := m.drv
	if drv == nil {
		var err error
		drv, err = nativeDriver()
		if err != nil {
			return nil, err
		}
	}
	serial := m.Serial
	if serial == "" {
		infos, err := listDevices(drv)
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			return nil, fmt.Errorf("%s: %w", m.p.Sprintf("msg.no_device"), ErrDeviceNotFound)
		}
		serial = infos[0].Serial
	}
	return openDevice(drv, serial)
}

// Open implements IGXMedia
func (m *Media) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil && m.dev.IsOpen() {
		return nil
	}
	if err := m.Validate(); err != nil {
		return err
	}
	m.statef(false, gxcommon.MediaStateOpening)
	m.trace(false, gxcommon.TraceTypesInfo, m.p.Sprintf("msg.opening", m.Serial))
	dev, err := m.openDevice()
	if err != nil {
		m.trace(false, gxcommon.TraceTypesError, m.p.Sprintf("msg.open_failed", m.Serial, err))
		m.errorf(false, err)
		return err
	}
	m.dev = dev
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.reader(dev, m.stop)
	m.trace(false, gxcommon.TraceTypesInfo, m.p.Sprintf("msg.opened", dev.Serial()))
	m.statef(false, gxcommon.MediaStateOpen)
	return nil
}

// Send implements IGXMedia
func (m *Media) Send(data any, receiver string) error {
	m.mu.RLock()
	dev := m.dev
	m.mu.RUnlock()
	if dev == nil {
		return ErrDeviceClosed
	}
	tmp, err := gxcommon.ToBytes(data, binary.BigEndian)
	if err != nil {
		return err
	}
	//Trace data.
	str, err := gxcommon.ToString(data)
	if err != nil {
		return err
	}
	m.tracef(true, gxcommon.TraceTypesSent, "TX: %s", str)
	n, err := dev.Pipe(m.writePipe).Write(tmp)
	m.bytesSent.Add(uint64(n))
	return err
}

// Receive implements IGXMedia
func (m *Media) Receive(args *gxcommon.ReceiveParameters) (bool, error) {
	if args.EOP == nil && args.Count == 0 && !args.AllData {
		return false, errors.New(m.p.Sprintf("msg.count_or_eop"))
	}
	terminator, err := gxcommon.ToBytes(args.EOP, binary.BigEndian)
	if err != nil {
		return false, err
	}

	var waitTime time.Duration
	if args.WaitTime > 0 {
		waitTime = time.Duration(args.WaitTime) * time.Millisecond
	}
	index := m.received.search(terminator, args.Count, waitTime)
	if index == -1 {
		return false, nil
	}

	if args.AllData {
		//Read all data.
		index = -1
	}
	args.Reply, err = gxcommon.BytesToAny2(m.received.take(index), args.ReplyType, binary.BigEndian)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Media) handleData(data []byte) {
	str, err := gxcommon.ToString(data)
	if err != nil {
		m.tracef(true, gxcommon.TraceTypesError, "RX failed: %v", err)
		m.errorf(true, err)
	} else {
		m.tracef(true, gxcommon.TraceTypesReceived, "RX: %s", str)
	}
	if m.IsSynchronous() {
		m.appendData(data)
	} else {
		m.receivef(true, data)
	}
}

// reader pulls from the IN pipe until the media is closed. Pipe timeouts
// are idle periods, not failures.
func (m *Media) reader(dev *Device, stop chan struct{}) {
	defer m.wg.Done()
	pipe := dev.Pipe(m.readPipe)
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := pipe.Read(buf)
		switch {
		case err == nil:
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				m.bytesReceived.Add(uint64(n))
				m.handleData(data)
			}
		case errors.Is(err, ErrTimeout):
			// No data within the pipe timeout; keep polling.
		case errors.Is(err, ErrDeviceClosed), errors.Is(err, ErrOperationCancelled):
			return
		default:
			select {
			case <-stop:
			default:
				m.trace(true, gxcommon.TraceTypesError, m.p.Sprintf("msg.read_failed", err))
				m.errorf(true, err)
			}
			return
		}
	}
}

func (m *Media) receivef(lock bool, data []byte) {
	var cb gxcommon.ReceivedEventHandler
	if lock {
		m.mu.RLock()
		cb = m.onReceive
		m.mu.RUnlock()
	} else {
		cb = m.onReceive
	}
	if cb != nil {
		cb(m, *gxcommon.NewReceiveEventArgs(data, m.Serial))
	}
}

func (m *Media) errorf(lock bool, err error) {
	var cb gxcommon.ErrorEventHandler
	if lock {
		m.mu.RLock()
		cb = m.onErr
		m.mu.RUnlock()
	} else {
		cb = m.onErr
	}
	if cb != nil {
		cb(m, err)
	}
}

func (m *Media) tracef(lock bool, traceType gxcommon.TraceTypes, fmtStr string, a ...any) {
	var cb gxcommon.TraceEventHandler
	trace := false
	if lock {
		m.mu.RLock()
		trace = int(m.traceLevel) >= int(traceType)
		cb = m.onTrace
		m.mu.RUnlock()
	} else {
		trace = int(m.traceLevel) >= int(traceType)
		cb = m.onTrace
	}
	if cb != nil && trace {
		p := gxcommon.NewTraceEventArgs(traceType, fmt.Sprintf(fmtStr, a...), "")
		var media gxcommon.IGXMedia = m
		cb(media, *p)
	}
}

func (m *Media) trace(lock bool, traceType gxcommon.TraceTypes, message string) {
	m.tracef(lock, traceType, "%s", message)
}

func (m *Media) statef(lock bool, state gxcommon.MediaState) {
	var cb gxcommon.MediaStateHandler
	if lock {
		m.mu.RLock()
		cb = m.onState
		m.mu.RUnlock()
	} else {
		cb = m.onState
	}
	if cb != nil {
		cb(m, *gxcommon.NewMediaStateEventArgs(state))
	}
}

func (m *Media) appendData(data []byte) {
	if len(data) == 0 {
		return
	}
	m.received.append(data)
	m.mu.Lock()
	m.receivedSize += len(data)
	m.mu.Unlock()
}

// Close implements IGXMedia
func (m *Media) Close() error {
	m.mu.Lock()
	stop, dev := m.stop, m.dev
	m.stop = nil
	m.mu.Unlock()
	if stop == nil && dev == nil {
		return nil
	}
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	var err error
	if dev != nil && dev.IsOpen() {
		m.trace(true, gxcommon.TraceTypesInfo, m.p.Sprintf("msg.closing", dev.Serial()))
		m.statef(true, gxcommon.MediaStateClosing)
		err = dev.Close()
		m.trace(true, gxcommon.TraceTypesInfo, m.p.Sprintf("msg.closed", dev.Serial()))
		m.statef(true, gxcommon.MediaStateClosed)
	}
	// Closing the device aborts the reader's blocking read.
	m.wg.Wait()
	return err
}

//nolint:errcheck
func init() {
	// --- English (default) ---
	message.SetString(language.AmericanEnglish, "msg.opening", "Opening device %s")
	message.SetString(language.AmericanEnglish, "msg.opened", "Device %s opened")
	message.SetString(language.AmericanEnglish, "msg.open_failed", "open device %s: failed: %v")
	message.SetString(language.AmericanEnglish, "msg.closing", "Closing device %s")
	message.SetString(language.AmericanEnglish, "msg.closed", "Device %s closed")
	message.SetString(language.AmericanEnglish, "msg.read_failed", "Read failed: %v")
	message.SetString(language.AmericanEnglish, "msg.count_or_eop", "Either Count or EOP must be set")
	message.SetString(language.AmericanEnglish, "msg.no_device", "No FT60x device found")
	message.SetString(language.AmericanEnglish, "msg.invalid_read_pipe", "Read pipe must be an IN pipe.")
	message.SetString(language.AmericanEnglish, "msg.invalid_write_pipe", "Write pipe must be an OUT pipe.")

	// --- German (de) ---
	message.SetString(language.German, "msg.opening", "Gerät %s wird geöffnet")
	message.SetString(language.German, "msg.opened", "Gerät %s geöffnet")
	message.SetString(language.German, "msg.open_failed", "Gerät %s öffnen: fehlgeschlagen: %v")
	message.SetString(language.German, "msg.closing", "Gerät %s wird geschlossen")
	message.SetString(language.German, "msg.closed", "Gerät %s geschlossen")
	message.SetString(language.German, "msg.read_failed", "Lesen fehlgeschlagen: %v")
	message.SetString(language.German, "msg.count_or_eop", "Entweder Count oder EOP muss gesetzt sein")
	message.SetString(language.German, "msg.no_device", "Kein FT60x-Gerät gefunden")
	message.SetString(language.German, "msg.invalid_read_pipe", "Der Lese-Pipe muss ein IN-Pipe sein.")
	message.SetString(language.German, "msg.invalid_write_pipe", "Der Schreib-Pipe muss ein OUT-Pipe sein.")

	// --- Finnish (fi) ---
	message.SetString(language.Finnish, "msg.opening", "Avataan laitetta %s")
	message.SetString(language.Finnish, "msg.opened", "Laite %s avattu")
	message.SetString(language.Finnish, "msg.open_failed", "laitteen %s avaus epäonnistui: %v")
	message.SetString(language.Finnish, "msg.closing", "Suljetaan laitetta %s")
	message.SetString(language.Finnish, "msg.closed", "Laite %s suljettu")
	message.SetString(language.Finnish, "msg.read_failed", "Luku epäonnistui: %v")
	message.SetString(language.Finnish, "msg.count_or_eop", "Joko Count tai EOP on asetettava")
	message.SetString(language.Finnish, "msg.no_device", "FT60x-laitetta ei löytynyt")
	message.SetString(language.Finnish, "msg.invalid_read_pipe", "Lukuputken on oltava IN-putki.")
	message.SetString(language.Finnish, "msg.invalid_write_pipe", "Kirjoitusputken on oltava OUT-putki.")
}

// Localize messages for the specified language.
// No error is returned if the language is not supported.
func (m *Media) Localize(tag language.Tag) {
	m.p = message.NewPrinter(tag)
}
