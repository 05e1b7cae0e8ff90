/*Package sweep drives the swept local oscillator and decodes the RF switch
state.

The oscillator itself is programmed by an external counter that listens for
falling edges on two lines: one edge on the increment line advances it one
step, one edge on the reset line returns it to the start of the band. The
controller's only state is its shadow copy of the frequency the counter is
assumed to be at; a counter that misses edges shows up as frequency drift in
the data, not as an error here.
*/
package sweep

import (
	"fmt"
	"math"
	"time"

	"github.com/highz-obs/filterbank/gpio"
)

// Range describes a sweep band in MHz.
type Range struct {
	Min  float64 `koanf:"min"`
	Max  float64 `koanf:"max"`
	Step float64 `koanf:"step"`
}

// Steps returns the number of distinct frequencies in one pass of the band.
// The division is rounded so fractional steps like 0.2 MHz count exactly.
func (r Range) Steps() int {
	return int(math.Round((r.Max-r.Min)/r.Step)) + 1
}

// Validate checks the band for internal consistency.
func (r Range) Validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("sweep step must be positive, got %f", r.Step)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("sweep range %f..%f is empty", r.Min, r.Max)
	}
	return nil
}

const (
	// DefaultEdgeSettle is the hold time on each side of a control edge.
	DefaultEdgeSettle = 3 * time.Millisecond

	// DefaultResetSettle is the extra wait after a reset edge before the
	// counter will accept the first increment of the new pass.
	DefaultResetSettle = 10 * time.Millisecond
)

// Controller tracks the oscillator frequency and owns the two control lines.
type Controller struct {
	increment gpio.Line
	reset     gpio.Line
	band      Range

	// EdgeSettle and ResetSettle may be shortened in tests; they default
	// to the values above.
	EdgeSettle  time.Duration
	ResetSettle time.Duration

	// step index into the band; frequency is derived, never accumulated,
	// so fractional steps stay exact
	idx int
}

// NewController returns a controller parked at the bottom of the band.
// It does not touch the lines; call ResetSweep to align the external counter.
func NewController(increment, reset gpio.Line, band Range) (*Controller, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		increment:   increment,
		reset:       reset,
		band:        band,
		EdgeSettle:  DefaultEdgeSettle,
		ResetSettle: DefaultResetSettle,
	}, nil
}

// Frequency returns the tracked oscillator frequency in MHz.
func (c *Controller) Frequency() float64 {
	return c.band.Min + float64(c.idx)*c.band.Step
}

// Band returns the configured sweep band.
func (c *Controller) Band() Range {
	return c.band
}

// Advance moves the oscillator one step. Below the top of the band it emits
// an increment edge; at the top it emits a reset edge, waits for the counter
// to settle, then an increment edge, and the tracked frequency wraps to the
// bottom of the band.
func (c *Controller) Advance() error {
	if c.idx < c.band.Steps()-2 {
		if err := gpio.Pulse(c.increment, c.EdgeSettle); err != nil {
			return err
		}
		c.idx++
		return nil
	}
	if err := gpio.Pulse(c.reset, c.EdgeSettle); err != nil {
		return err
	}
	time.Sleep(c.ResetSettle)
	if err := gpio.Pulse(c.increment, c.EdgeSettle); err != nil {
		return err
	}
	c.idx = 0
	return nil
}

// ResetSweep pulses the reset line and re-arms the tracked frequency at the
// bottom of the band. Used at startup and between calibration passes.
func (c *Controller) ResetSweep() error {
	if err := gpio.Pulse(c.reset, c.ResetSettle); err != nil {
		return err
	}
	c.idx = 0
	return nil
}
