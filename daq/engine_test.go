package daq_test

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/highz-obs/filterbank/ads126x"
	"github.com/highz-obs/filterbank/daq"
	"github.com/highz-obs/filterbank/gpio"
	"github.com/highz-obs/filterbank/sweep"
)

// rig bundles a fully wired engine on simulated hardware.
type rig struct {
	bank  *ads126x.Bank
	aux   *ads126x.Sim
	coord *daq.Coordinator
	eng   *daq.Engine
	bufA  *daq.Buffer
	bufB  *daq.Buffer
}

func newRig(t *testing.T, rows int, cfg daq.EngineConfig) *rig {
	t.Helper()
	bank, aux := ads126x.SimBank()
	inc := gpio.NewMockLine(true)
	rst := gpio.NewMockLine(true)
	ctrl, err := sweep.NewController(inc, rst, sweep.Range{Min: 650, Max: 850, Step: 2})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	ctrl.EdgeSettle = 0
	ctrl.ResetSettle = 0
	det := sweep.NewStateDetector(bank, [3]int{7, 8, 9})
	coord := daq.NewCoordinator()
	a, err := daq.NewBuffer(rows)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	b, _ := daq.NewBuffer(rows)
	eng, err := daq.NewEngine(bank, det, ctrl, coord, cfg, a, b)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &rig{bank: bank, aux: aux, coord: coord, eng: eng, bufA: a, bufB: b}
}

// setState drives the aux channels to a given 3-bit switch state.
func (r *rig) setState(state int) {
	for i := 0; i < 3; i++ {
		v := 0.0
		if state&(1<<i) != 0 {
			v = 5.0
		}
		r.aux.SetChannelVoltage(7+i, v)
	}
}

// collect drains the pending channel, copying each buffer's rows before
// releasing it, and returns the copies once the channel closes.
func collect(eng *daq.Engine) <-chan [][]daq.Sample {
	out := make(chan [][]daq.Sample, 1)
	go func() {
		var sweeps [][]daq.Sample
		for buf := range eng.Pending() {
			rows := make([]daq.Sample, len(buf.Rows()))
			copy(rows, buf.Rows())
			sweeps = append(sweeps, rows)
			eng.Release(buf)
		}
		out <- sweeps
	}()
	return out
}

// Three consecutive transition-state iterations request shutdown on the
// third iteration, and that iteration's sample still reaches the sink.
func TestTransitionStateExit(t *testing.T) {
	r := newRig(t, 3, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: 3,
		SupplyChannel:   -1,
	})
	r.setState(2)

	sink := collect(r.eng)
	if err := r.eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !r.coord.ShuttingDown() {
		t.Fatal("engine returned without shutdown requested")
	}
	if r.coord.Reason() != daq.TriggerTransition {
		t.Errorf("reason = %v, want transition", r.coord.Reason())
	}

	sweeps := <-sink
	if len(sweeps) != 1 {
		t.Fatalf("sink received %d sweeps, want 1", len(sweeps))
	}
	last := sweeps[0][2]
	if last.Time == "" || last.Label != "2" || last.Frequency == "" {
		t.Errorf("transition iteration's sample incomplete: %+v", last)
	}
}

// If the exit flag rises mid-buffer, the partial buffer is discarded.
func TestPartialBufferDiscarded(t *testing.T) {
	r := newRig(t, 100, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: 3,
		SupplyChannel:   -1,
	})
	r.setState(2)

	sink := collect(r.eng)
	if err := r.eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeps := <-sink; len(sweeps) != 0 {
		t.Errorf("sink received %d sweeps from a run with only partial fills, want 0", len(sweeps))
	}
}

// A completed sweep contains exactly N fully stamped rows.
func TestCompletedSweepFullyStamped(t *testing.T) {
	const rows = 7
	r := newRig(t, rows, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: rows, // exit exactly at the buffer boundary
		SupplyChannel:   -1,
	})
	r.setState(2)

	sink := collect(r.eng)
	if err := r.eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sweeps := <-sink
	if len(sweeps) != 1 {
		t.Fatalf("got %d sweeps, want 1", len(sweeps))
	}
	stamp := regexp.MustCompile(`^\d{8}_\d{6}$`)
	file := sweeps[0][0].Filename
	for i, s := range sweeps[0] {
		if !stamp.MatchString(s.Time) {
			t.Errorf("row %d time %q not MMDDYYYY_HHMMSS", i, s.Time)
		}
		if s.Label == "" || s.Frequency == "" || s.Filename == "" {
			t.Errorf("row %d has empty fields: %+v", i, s)
		}
		if s.Filename != file {
			t.Errorf("row %d filename %q differs from row 0's %q", i, s.Filename, file)
		}
	}
	if sweeps[0][0].Frequency != "650.0" {
		t.Errorf("first row frequency = %q, want 650.0", sweeps[0][0].Frequency)
	}
	if sweeps[0][1].Frequency != "652.0" {
		t.Errorf("second row frequency = %q, want 652.0", sweeps[0][1].Frequency)
	}
}

// Buffers alternate round-robin and the sink never sees the same buffer
// twice in a row.
func TestBuffersAlternate(t *testing.T) {
	const rows = 4
	r := newRig(t, rows, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: rows * 4, // four full sweeps
		SupplyChannel:   -1,
	})
	r.setState(2)

	var mu sync.Mutex
	var order []*daq.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for buf := range r.eng.Pending() {
			mu.Lock()
			order = append(order, buf)
			mu.Unlock()
			r.eng.Release(buf)
		}
	}()
	if err := r.eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-done

	if len(order) != 4 {
		t.Fatalf("got %d sweeps, want 4", len(order))
	}
	for i := 1; i < len(order); i++ {
		if order[i] == order[i-1] {
			t.Errorf("buffer repeated at handoff %d", i)
		}
	}
}

// flaky fails the first n full reads, then defers to the bank.
type flaky struct {
	*ads126x.Bank
	fails int
}

func (f *flaky) ReadAll() ([daq.NumFrontEnds][daq.NumChannels]uint32, error) {
	if f.fails > 0 {
		f.fails--
		return [daq.NumFrontEnds][daq.NumChannels]uint32{}, errors.New("induced read fault")
	}
	return f.Bank.ReadAll()
}

// A failed front-end read abandons the iteration without advancing the row
// index; the sweep still completes with N good rows.
func TestReadErrorAbandonsIteration(t *testing.T) {
	bank, aux := ads126x.SimBank()
	inc := gpio.NewMockLine(true)
	rst := gpio.NewMockLine(true)
	ctrl, _ := sweep.NewController(inc, rst, sweep.Range{Min: 650, Max: 850, Step: 2})
	ctrl.EdgeSettle = 0
	ctrl.ResetSettle = 0
	det := sweep.NewStateDetector(bank, [3]int{7, 8, 9})
	coord := daq.NewCoordinator()
	a, _ := daq.NewBuffer(3)
	b, _ := daq.NewBuffer(3)
	// the state decode precedes the data read, so the two dropped
	// iterations still tick the transition counter: 2 drops + 3 good
	// rows line the shutdown up with the buffer boundary
	fr := &flaky{Bank: bank, fails: 2}
	eng, err := daq.NewEngine(fr, det, ctrl, coord, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: 5,
		SupplyChannel:   -1,
	}, a, b)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for i := 0; i < 3; i++ {
		v := 0.0
		if 2&(1<<i) != 0 {
			v = 5.0
		}
		aux.SetChannelVoltage(7+i, v)
	}

	sink := collect(eng)
	if err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sweeps := <-sink
	if len(sweeps) != 1 {
		t.Fatalf("got %d sweeps, want 1", len(sweeps))
	}
	for i, s := range sweeps[0] {
		if s.Time == "" {
			t.Errorf("row %d empty after read faults", i)
		}
	}
	if got := eng.Stats().Dropped; got != 2 {
		t.Errorf("dropped iterations = %d, want 2", got)
	}
}

// An interrupt-style shutdown terminates the engine promptly even when the
// switch state never reaches the transition value.
func TestSignalShutdown(t *testing.T) {
	r := newRig(t, 1000, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: 3,
		SupplyChannel:   -1,
	})
	r.setState(5)

	sink := collect(r.eng)
	errc := make(chan error, 1)
	go func() { errc <- r.eng.Run() }()
	time.Sleep(20 * time.Millisecond)
	r.coord.Shutdown(daq.TriggerSignal)
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not exit after shutdown")
	}
	<-sink
}

// The supply voltage is sampled once per buffer from the designated channel.
func TestSupplySampledPerBuffer(t *testing.T) {
	r := newRig(t, 2, daq.EngineConfig{
		TransitionState: 2,
		TransitionCount: 2,
		SupplyChannel:   ads126x.MonitorChannel,
	})
	r.setState(2)
	r.aux.SetChannelVoltage(ads126x.MonitorChannel, 4.2)

	var supplies []float64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for buf := range r.eng.Pending() {
			supplies = append(supplies, buf.Supply)
			r.eng.Release(buf)
		}
	}()
	if err := r.eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-done
	if len(supplies) != 1 {
		t.Fatalf("got %d sweeps, want 1", len(supplies))
	}
	if supplies[0] < 4.1 || supplies[0] > 4.3 {
		t.Errorf("supply voltage = %f, want ~4.2", supplies[0])
	}
}
