package daq

import (
	"sync"
	"sync/atomic"
)

// Trigger identifies what requested shutdown.
type Trigger int

const (
	// TriggerNone means no shutdown has been requested.
	TriggerNone Trigger = iota

	// TriggerSignal is an external interrupt (SIGINT/SIGTERM).
	TriggerSignal

	// TriggerTransition is the engine observing the transition switch
	// state for the configured number of consecutive sweeps.
	TriggerTransition
)

func (t Trigger) String() string {
	switch t {
	case TriggerSignal:
		return "interrupt"
	case TriggerTransition:
		return "transition state"
	default:
		return "none"
	}
}

// Coordinator merges asynchronous interrupts and the engine's own exit
// condition into a single cooperative flag. Shutdown may be called from a
// signal-watching goroutine at any instant; it does nothing but record the
// trigger and release waiters, leaving all cleanup to the main path.
type Coordinator struct {
	once   sync.Once
	reason atomic.Int32
	done   chan struct{}
}

// NewCoordinator returns a coordinator with no shutdown requested.
func NewCoordinator() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// Shutdown requests cooperative exit. The first trigger wins; later calls
// are no-ops.
func (c *Coordinator) Shutdown(t Trigger) {
	c.once.Do(func() {
		c.reason.Store(int32(t))
		close(c.done)
	})
}

// ShuttingDown reports whether shutdown has been requested.
func (c *Coordinator) ShuttingDown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once shutdown is requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Reason returns the trigger that requested shutdown, or TriggerNone.
func (c *Coordinator) Reason() Trigger {
	return Trigger(c.reason.Load())
}
