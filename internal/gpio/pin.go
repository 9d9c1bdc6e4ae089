// Package gpio adapts periph.io GPIO lines into debounced buttons and LEDs.
//
// Any failure to reach the hardware leaves the port inert: it logs once and
// then behaves as a line that never fires or ignores writes.
package gpio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pin is the subset of gpio.PinIO the ports drive.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Out(level gpio.Level) error
	Halt() error
}

// Opener resolves a line name to a pin.
type Opener func(name string) (Pin, error)

var (
	hostOnce sync.Once
	hostErr  error
)

// HostOpener initializes the periph.io host drivers once and looks lines up in
// the gpio registry by name (for example "GPIO17").
func HostOpener() Opener {
	return func(name string) (Pin, error) {
		hostOnce.Do(func() {
			_, hostErr = host.Init()
		})
		if hostErr != nil {
			return nil, fmt.Errorf("init gpio host: %w", hostErr)
		}

		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio line %q not found", name)
		}
		return p, nil
	}
}
