package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/mtmk-ee/d3xx"
	"golang.org/x/text/language"
)

var (
	serial    = flag.String("S", "", "Device serial number. Empty uses the first device found.")
	readPipe  = flag.String("r", "In0", "Read pipe (In0..In3)")
	writePipe = flag.String("W", "Out0", "Write pipe (Out0..Out3)")
	message   = flag.String("m", "", "Send message")
	list      = flag.Bool("l", false, "List connected devices and exit.")
	gpio      = flag.Bool("g", false, "Toggle GPIO pin 0 before sending.")
	async     = flag.Bool("a", false, "Demonstrate an overlapped transfer and a notification wait.")
	t         = flag.String("t", "", "Trace level.")
	w         = flag.Int("w", 1000, "WaitTime in milliseconds.")
	lang      = flag.String("lang", "", "Used language.")
)

func listDevices() {
	devices, err := d3xx.ListDevices()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	if len(devices) == 0 {
		fmt.Println("No FT60x devices connected.")
		return
	}
	for _, d := range devices {
		fmt.Printf("%d: %s (%s) VID=%04x PID=%04x type=%v open=%v superspeed=%v\n",
			d.Index(), d.Serial, d.Description, d.VID, d.PID, d.Type, d.IsOpen(), d.IsSuperSpeed())
	}
}

func toggleGPIO(dev *d3xx.Device) error {
	if err := dev.EnableGPIO(d3xx.GPIOPin0, d3xx.GPIOOutput); err != nil {
		return err
	}
	if err := dev.SetGPIO(d3xx.GPIOPin0, d3xx.GPIOHigh); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return dev.SetGPIO(d3xx.GPIOPin0, d3xx.GPIOLow)
}

// asyncDemo issues an overlapped read, cancels it if nothing arrives, and
// then waits briefly for a driver notification.
func asyncDemo(dev *d3xx.Device, pipe d3xx.Pipe) {
	op, err := dev.Pipe(pipe).ReadAsync(make([]byte, 4096))
	if err != nil {
		fmt.Fprintln(os.Stderr, "async read failed:", err)
		return
	}
	time.Sleep(100 * time.Millisecond)
	if op.Poll() {
		n, err := op.Result()
		fmt.Printf("Overlapped read finished: n=%d err=%v\n", n, err)
	} else {
		if err := op.Cancel(); err != nil {
			fmt.Fprintln(os.Stderr, "cancel failed:", err)
			return
		}
		fmt.Printf("Overlapped read state: %v\n", op.State())
	}

	n, err := dev.WaitForNotification(time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no notification:", err)
		return
	}
	switch n.Kind {
	case d3xx.NotificationData:
		fmt.Printf("Notification: %d bytes pending on %v\n", n.Size, n.Pipe)
	case d3xx.NotificationGPIO:
		fmt.Printf("Notification: GPIO0=%d GPIO1=%d\n", n.GPIO0, n.GPIO1)
	}
}

func main() {
	flag.Parse()
	if *list {
		listDevices()
		return
	}
	if *message == "" {
		flag.PrintDefaults()
		return
	}

	rp, err := d3xx.PipeParse(*readPipe)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error parsing read pipe:", err)
		return
	}
	wp, err := d3xx.PipeParse(*writePipe)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error parsing write pipe:", err)
		return
	}

	media := d3xx.NewMedia(*serial, rp, wp)
	if *lang != "" {
		tag, err := language.Parse(*lang)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error parsing language:", err)
			return
		}
		media.Localize(tag)
	}

	media.SetOnError(func(m gxcommon.IGXMedia, err error) {
		// log/handle error
		fmt.Fprintln(os.Stderr, "error:", err)
	})

	media.SetOnReceived(func(m gxcommon.IGXMedia, e gxcommon.ReceiveEventArgs) {
		fmt.Printf("Async data: %s\n", e.String())
	})

	media.SetOnMediaStateChange(func(m gxcommon.IGXMedia, e gxcommon.MediaStateEventArgs) {
		fmt.Printf("Media state change : %s\n", e.State().String())
	})

	media.SetOnTrace(func(m gxcommon.IGXMedia, e gxcommon.TraceEventArgs) {
		fmt.Printf("Trace: %s\n", e.String())
	})

	err = media.Validate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}

	if *t != "" {
		tl, err := gxcommon.TraceLevelParse(*t)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		err = media.SetTrace(tl)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
	}
	fmt.Printf("Device serial: %q\n", *serial)
	fmt.Printf("Message: '%s'\n", *message)
	fmt.Printf("Trace level %s\n", media.GetTrace().String())
	err = media.Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error returned:", err)
		listDevices()
		return
	}
	//Close the connection.
	defer func() {
		if err := media.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close failed:", err)
		}
	}()

	if *gpio {
		if err := toggleGPIO(media.Device()); err != nil {
			fmt.Fprintln(os.Stderr, "gpio failed:", err)
			return
		}
	}

	if *async {
		// Use a pipe the media reader is not draining.
		other := rp + 1
		if other > d3xx.PipeIn3 {
			other = d3xx.PipeIn0
		}
		asyncDemo(media.Device(), other)
	}

	//Send data synchronously.
	//Use defer media.GetSynchronous()() if sync is end when the method ends.
	//Or call media.GetSynchronous() when sync is needed and
	//call the returned function when sync is not needed anymore.
	func() {
		defer media.GetSynchronous()()
		err = media.Send(*message, "")
		//Send EOP
		err = media.Send("\n", "")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		r := gxcommon.NewReceiveParameters[string]()
		r.EOP = "\n"
		r.WaitTime = *w
		r.Count = 0
		ret, err := media.Receive(r)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error returned:", err)
			return
		}
		if ret {
			fmt.Printf("Sync data: %s\n", r.Reply)
		}
	}()
	fmt.Printf("Exit\n")
}
