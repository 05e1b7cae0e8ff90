package gpio

import "sync"

// MockLine records every level driven onto it. It is safe for concurrent
// use so tests can inspect it while a loop is running.
type MockLine struct {
	mu     sync.Mutex
	level  bool
	levels []bool
	closed bool
}

// NewMockLine returns a mock line at the given initial level.
func NewMockLine(initial bool) *MockLine {
	return &MockLine{level: initial}
}

// Set drives the line and records the level.
func (m *MockLine) Set(level bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	m.levels = append(m.levels, level)
	return nil
}

// Close marks the line closed.
func (m *MockLine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Level reports the current level.
func (m *MockLine) Level() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// History returns a copy of every level driven since creation.
func (m *MockLine) History() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.levels))
	copy(out, m.levels)
	return out
}

// FallingEdges counts the falling edges driven onto the line.
func (m *MockLine) FallingEdges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	prev := true
	for _, l := range m.levels {
		if prev && !l {
			n++
		}
		prev = l
	}
	return n
}

// Closed reports whether Close has been called.
func (m *MockLine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
