package d3xx

import (
	"fmt"
	"time"
)

// NotificationKind distinguishes the events the driver can signal.
type NotificationKind int

const (
	// NotificationData signals that data is ready on a pipe enabled for
	// notifications. Pipe and Size describe the pending transfer.
	NotificationData NotificationKind = iota + 1
	// NotificationGPIO signals a GPIO state change. GPIO0 and GPIO1 carry
	// the pin levels.
	NotificationGPIO
)

func (k NotificationKind) String() string {
	switch k {
	case NotificationData:
		return "Data"
	case NotificationGPIO:
		return "GPIO"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(k))
	}
}

// Notification is one event signalled by the driver.
type Notification struct {
	Kind NotificationKind

	// Data events.
	Pipe Pipe
	Size int

	// GPIO events.
	GPIO0 GPIOLevel
	GPIO1 GPIOLevel
}

// WaitForNotification blocks until the driver signals an event on this
// device, the timeout elapses, or the device is closed. A timeout of zero or
// less blocks indefinitely.
//
// The driver delivers notifications to one consumer; exactly one goroutine
// may wait per handle at a time. A second concurrent waiter is a usage error
// and is reported as ErrNotificationBusy instead of racing the first.
func (d *Device) WaitForNotification(timeout time.Duration) (Notification, error) {
	if err := d.ensureOpen(); err != nil {
		return Notification{}, err
	}
	if !d.waiting.CompareAndSwap(false, true) {
		return Notification{}, ErrNotificationBusy
	}
	defer d.waiting.Store(false)
	if err := d.registerNotifications(); err != nil {
		return Notification{}, err
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case n := <-d.notifyCh:
		return n, nil
	case <-expired:
		return Notification{}, fmt.Errorf("notification wait: %w", ErrTimeout)
	case <-d.done:
		return Notification{}, ErrDeviceClosed
	}
}

// registerNotifications installs the native callback once per handle.
func (d *Device) registerNotifications() error {
	d.notifyOnce.Do(func() {
		d.notifySt = d.drv.setNotificationCallback(d.h, d.queueNotification)
		if d.notifySt == StatusOK {
			d.notifyRegistered.Store(true)
		}
	})
	if d.notifySt != StatusOK {
		return statusError("FT_SetNotificationCallback", d.notifySt)
	}
	return nil
}

// queueNotification runs on a driver thread and must never block. Events
// beyond the channel's buffer are dropped; the driver signals again when
// more data arrives.
func (d *Device) queueNotification(ev notifyEvent) {
	var n Notification
	if ev.gpio {
		n = Notification{
			Kind:  NotificationGPIO,
			GPIO0: GPIOLevel(ev.gpio0 & 1),
			GPIO1: GPIOLevel(ev.gpio1 & 1),
		}
	} else {
		n = Notification{
			Kind: NotificationData,
			Pipe: Pipe(ev.pipe),
			Size: ev.size,
		}
	}
	select {
	case d.notifyCh <- n:
	default:
	}
}
