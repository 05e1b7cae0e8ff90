package sweep

import (
	"fmt"

	"github.com/highz-obs/filterbank/ads126x"
)

// StateThreshold is the voltage above which a switch-state bit reads as set.
// The RF box drives the aux lines at nominally 0 or 5 V; 3.0 V splits the
// rails with margin for droop on the cal/antenna switch harness.
const StateThreshold = 3.0

// NumStateBits is the width of the switch state word.
const NumStateBits = 3

// AuxReader reads auxiliary channels of the front end carrying the switch
// state lines.
type AuxReader interface {
	ReadAux(channel int) (uint32, error)
}

// StateDetector decodes the 3-bit RF switch state from three aux channels.
type StateDetector struct {
	aux      AuxReader
	channels [NumStateBits]int
}

// NewStateDetector returns a detector reading the given channels, ascending
// channel order mapping to ascending bit significance.
func NewStateDetector(aux AuxReader, channels [NumStateBits]int) *StateDetector {
	return &StateDetector{aux: aux, channels: channels}
}

// Decode reads the aux channels and returns the switch state in [0,7].
func (d *StateDetector) Decode() (int, error) {
	var v [NumStateBits]float64
	for i, ch := range d.channels {
		raw, err := d.aux.ReadAux(ch)
		if err != nil {
			return 0, fmt.Errorf("switch state channel %d: %w", ch, err)
		}
		v[i] = ads126x.Voltage(raw)
	}
	return DecodeVoltages(v), nil
}

// DecodeVoltages thresholds each voltage at StateThreshold and composes the
// bits into a state word, index 0 being the least significant bit. Voltages
// exactly at the threshold decode as set.
func DecodeVoltages(v [NumStateBits]float64) int {
	state := 0
	for i, volts := range v {
		if volts >= StateThreshold {
			state |= 1 << i
		}
	}
	return state
}
