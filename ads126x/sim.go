package ads126x

import (
	"math/rand"
	"sync"
)

// RawForVoltage is the inverse of Voltage for the positive half of the range.
// It is primarily useful for constructing simulated readings.
func RawForVoltage(v float64) uint32 {
	return uint32(v / 5 * 2147483647.8)
}

// Sim is a simulated front end. Data channels return a midscale value with
// a little noise; values set via SetChannel are returned verbatim. It is
// safe for concurrent use, unlike the hardware it stands in for, so tests
// may adjust channels while an acquisition loop runs.
type Sim struct {
	mu     sync.Mutex
	fixed  map[int]uint32
	closed bool

	// Err, when non-nil, is returned by every read. Used to exercise
	// the engine's per-iteration error path.
	Err error
}

// NewSim returns a Sim with no fixed channel values.
func NewSim() *Sim {
	return &Sim{fixed: make(map[int]uint32)}
}

// SetChannel pins a channel to a raw value.
func (s *Sim) SetChannel(channel int, raw uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed[channel] = raw
}

// SetChannelVoltage pins a channel to the raw value corresponding to v volts.
func (s *Sim) SetChannelVoltage(channel int, v float64) {
	s.SetChannel(channel, RawForVoltage(v))
}

// ReadChannel reads a single channel.
func (s *Sim) ReadChannel(channel int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.Err != nil {
		return 0, s.Err
	}
	if v, ok := s.fixed[channel]; ok {
		return v, nil
	}
	// midscale plus a few counts of noise
	return 1<<30 + uint32(rand.Intn(1024)), nil
}

// ReadChannels reads the given channels in order.
func (s *Sim) ReadChannels(channels []int) ([]uint32, error) {
	out := make([]uint32, len(channels))
	for i, ch := range channels {
		v, err := s.ReadChannel(ch)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close marks the simulator closed; subsequent reads fail with ErrClosed.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SimBank returns a Bank of three fresh simulators and the first board,
// which carries the aux inputs tests usually want to poke at.
func SimBank() (*Bank, *Sim) {
	a, b, c := NewSim(), NewSim(), NewSim()
	return &Bank{Boards: [3]FrontEnd{a, b, c}}, a
}
