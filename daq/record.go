/*Package daq contains the continuous acquisition pipeline: the sample and
sweep-buffer data model, the producer engine that fills buffers from the
front ends while stepping the local oscillator, and the shutdown coordinator
that merges interrupts with the transition-state exit condition.

Exactly two goroutines touch this machinery: the engine (producer, sole
hardware owner) and whatever consumes the pending-buffer channel (the FITS
sink). Buffers move between them by ownership transfer over channels, never
by shared mutation.
*/
package daq

import (
	"fmt"
	"time"
)

const (
	// NumFrontEnds is the count of AD HATs read per sample.
	NumFrontEnds = 3

	// NumChannels is the count of data channels per front end.
	NumChannels = 7

	// TimeFormat is the stamp layout, MMDDYYYY_HHMMSS.
	TimeFormat = "01022006_150405"

	// FieldCap is the capacity of textual record fields. Longer values
	// are truncated at stamp time, never overflowed.
	FieldCap = 32
)

// Sample is one measurement instant: the raw readings of all three front
// ends plus the metadata stamped alongside them.
type Sample struct {
	FrontEnd [NumFrontEnds][NumChannels]uint32

	// Time is when the sample was taken, in TimeFormat.
	Time string

	// Label is the decoded switch state for acquisition, or the signed
	// power level in dBm for calibration.
	Label string

	// Frequency is the tracked oscillator frequency in decimal MHz.
	Frequency string

	// Filename is the stamp shared by every row of a buffer, used to
	// name the output file.
	Filename string
}

// Clamp truncates s to the record field capacity, leaving room for the
// NUL terminator the serialized form carries.
func Clamp(s string) string {
	if len(s) >= FieldCap {
		return s[:FieldCap-1]
	}
	return s
}

// Stamp fills the metadata fields of the sample.
func (s *Sample) Stamp(t time.Time, label, frequency, filename string) {
	s.Time = Clamp(t.Format(TimeFormat))
	s.Label = Clamp(label)
	s.Frequency = Clamp(frequency)
	s.Filename = Clamp(filename)
}

// Buffer is one sweep's worth of samples. Its capacity is fixed at
// allocation and it is only ever mutated by whichever side of the handoff
// currently owns it.
type Buffer struct {
	rows []Sample

	// Supply is the system supply voltage sampled once per buffer,
	// recorded as a file-level attribute by the sink.
	Supply float64
}

// NewBuffer allocates a buffer of n rows.
func NewBuffer(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("buffer row count must be positive, got %d", n)
	}
	return &Buffer{rows: make([]Sample, n)}, nil
}

// Cap returns the fixed row capacity.
func (b *Buffer) Cap() int {
	return len(b.rows)
}

// Row returns a pointer to row i for in-place filling.
func (b *Buffer) Row(i int) *Sample {
	return &b.rows[i]
}

// Rows returns the full row slice. The caller must own the buffer.
func (b *Buffer) Rows() []Sample {
	return b.rows
}

// Clear zeroes every row and the supply sample.
func (b *Buffer) Clear() {
	for i := range b.rows {
		b.rows[i] = Sample{}
	}
	b.Supply = 0
}
