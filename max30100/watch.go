package max30100

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/periph/conn/gpio"
)

const edgeTimeout = 100 * time.Millisecond

// InterruptLine is the input wired to the active-low INT output of the
// sensor. gpio.PinIn satisfies it.
type InterruptLine interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// Watch runs HandleInterrupt on every falling edge of line until ctx is
// done. Handler failures are logged and do not stop the watch.
//
// INT stays low until the status register is read, so a missed edge or a
// failed status read would leave no further edges. Watch services the sensor
// once after configuring the line and again whenever a wait times out with
// the line still low.
func (d *Device) Watch(ctx context.Context, line InterruptLine) error {
	if err := line.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("max30100: could not configure interrupt line: %w", err)
	}
	d.service()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !line.WaitForEdge(edgeTimeout) && line.Read() != gpio.Low {
			continue
		}
		d.service()
	}
}

func (d *Device) service() {
	if err := d.HandleInterrupt(); err != nil {
		d.log.Warn("interrupt not serviced", zap.Error(err))
	}
}
