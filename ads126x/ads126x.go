/*Package ads126x provides the boundary to the high precision AD HAT front
ends used by the filter bank.

The register-level SPI driver is vendor code and lives behind the FrontEnd
interface; this package owns the pieces the acquisition engine actually
depends on: channel arithmetic, the bipolar transfer function that converts
raw readings to volts, and a simulated front end for development and tests.
A cgo wrapper for the vendor driver is available under the ads1263 build tag.
*/
package ads126x

import (
	"errors"
	"fmt"
)

const (
	// NumChannels is the count of data channels read from each front end per sample.
	NumChannels = 7

	// AuxLow..AuxHigh are the auxiliary inputs carrying the RF switch state bits.
	AuxLow  = 7
	AuxHigh = 9

	// MonitorChannel is the internal mux position used for supply-voltage sampling.
	MonitorChannel = 10
)

// ErrClosed is returned by reads on a front end that has been shut down.
var ErrClosed = errors.New("front end is closed")

// FrontEnd is one AD HAT. Implementations are not safe for concurrent use;
// the acquisition engine is the sole hardware owner by construction.
type FrontEnd interface {
	// ReadChannels reads the given channels in order.
	ReadChannels(channels []int) ([]uint32, error)

	// ReadChannel reads a single channel.
	ReadChannel(channel int) (uint32, error)

	// Close shuts down the SPI link to the board.
	Close() error
}

// DataChannels returns the channel list for a full data read, 0..NumChannels-1.
func DataChannels() []int {
	ch := make([]int, NumChannels)
	for i := range ch {
		ch[i] = i
	}
	return ch
}

// Voltage converts a raw reading to volts using the converter's bipolar
// transfer function. Readings with the sign bit set map to the negative
// half of the range folded about 10V, matching the board's front end.
func Voltage(raw uint32) float64 {
	if raw>>31 == 1 {
		return 10 - float64(raw)/2147483648.0*5
	}
	return float64(raw) / 2147483647.8 * 5
}

// Bank groups the three front ends read on every sample. The first board
// additionally carries the switch-state and supply-monitor inputs.
type Bank struct {
	Boards [3]FrontEnd
}

// ReadAll reads the data channels of all three boards.
func (b *Bank) ReadAll() ([3][NumChannels]uint32, error) {
	var out [3][NumChannels]uint32
	channels := DataChannels()
	for i, fe := range b.Boards {
		vals, err := fe.ReadChannels(channels)
		if err != nil {
			return out, fmt.Errorf("front end %d: %w", i+1, err)
		}
		if len(vals) != NumChannels {
			return out, fmt.Errorf("front end %d: short read, got %d channels", i+1, len(vals))
		}
		copy(out[i][:], vals)
	}
	return out, nil
}

// ReadAux reads one auxiliary channel of the first board.
func (b *Bank) ReadAux(channel int) (uint32, error) {
	return b.Boards[0].ReadChannel(channel)
}

// Close shuts down all three boards, returning the first error encountered.
func (b *Bank) Close() error {
	var first error
	for _, fe := range b.Boards {
		if err := fe.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
