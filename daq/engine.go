package daq

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/highz-obs/filterbank/ads126x"
	"github.com/highz-obs/filterbank/sweep"
)

// Reader is the engine's view of the three front ends.
type Reader interface {
	// ReadAll reads the data channels of every front end.
	ReadAll() ([NumFrontEnds][NumChannels]uint32, error)

	// ReadAux reads one auxiliary channel of the designated front end.
	ReadAux(channel int) (uint32, error)
}

// EngineConfig holds the tunables of the acquisition loop.
type EngineConfig struct {
	// TransitionState is the decoded switch state whose repeated
	// observation hands control to the calibration program.
	TransitionState int `koanf:"transitionstate"`

	// TransitionCount is how many consecutive observations of the
	// transition state request shutdown.
	TransitionCount int `koanf:"transitioncount"`

	// SupplyChannel is the aux channel sampled once per buffer for the
	// supply-voltage file attribute. Negative disables sampling.
	SupplyChannel int `koanf:"supplychannel"`

	// SamplePeriod paces the loop to at most one sample per period.
	// Zero leaves the loop paced only by the hardware settle times.
	SamplePeriod time.Duration `koanf:"sampleperiod"`
}

// Snapshot is a point-in-time view of engine progress for the status server.
type Snapshot struct {
	Rows        int     `json:"rows"`
	Sweeps      int     `json:"sweeps"`
	Dropped     int     `json:"droppedIterations"`
	Frequency   float64 `json:"frequencyMHz"`
	SwitchState int     `json:"switchState"`
	Transitions int     `json:"consecutiveTransitions"`
}

// Engine is the producer: it runs the acquisition loop, fills sweep buffers
// and hands full ones to the sink. It owns all hardware access.
type Engine struct {
	reader   Reader
	detector *sweep.StateDetector
	ctrl     *sweep.Controller
	coord    *Coordinator
	cfg      EngineConfig
	limiter  *rate.Limiter

	free    chan *Buffer
	pending chan *Buffer

	mu    sync.Mutex
	stats Snapshot
}

// NewEngine wires an engine around the two sweep buffers. Both buffers
// start on the free list; the pending channel is closed when Run returns.
func NewEngine(r Reader, det *sweep.StateDetector, ctrl *sweep.Controller, coord *Coordinator, cfg EngineConfig, a, b *Buffer) (*Engine, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("engine requires two buffers")
	}
	if a.Cap() != b.Cap() {
		return nil, fmt.Errorf("buffer capacities differ: %d vs %d", a.Cap(), b.Cap())
	}
	if cfg.TransitionCount <= 0 {
		cfg.TransitionCount = 3
	}
	e := &Engine{
		reader:   r,
		detector: det,
		ctrl:     ctrl,
		coord:    coord,
		cfg:      cfg,
		free:     make(chan *Buffer, 2),
		pending:  make(chan *Buffer, 2),
	}
	if cfg.SamplePeriod > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.SamplePeriod), 1)
	}
	e.free <- a
	e.free <- b
	return e, nil
}

// Pending returns the channel full buffers are handed off on. It is closed
// when the engine exits; the consumer should range over it.
func (e *Engine) Pending() <-chan *Buffer {
	return e.pending
}

// Release returns a written buffer to the free list. Only the consumer may
// call it, and only with a buffer it received from Pending.
func (e *Engine) Release(b *Buffer) {
	b.Clear()
	e.free <- b
}

// Stats returns a copy of the engine's progress counters.
func (e *Engine) Stats() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run executes the acquisition loop until the coordinator requests exit.
// A partially filled buffer at exit is discarded; only whole sweeps are
// ever handed to the sink. The pending channel is closed on return.
func (e *Engine) Run() error {
	defer close(e.pending)

	ctx := context.Background()
	transitions := 0
	buf := e.nextBuffer()
	row := 0
	fileStamp := ""

	for !e.coord.ShuttingDown() {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		now := time.Now()
		if row == 0 {
			fileStamp = now.Format(TimeFormat)
			e.sampleSupply(buf)
		}

		state, err := e.detector.Decode()
		if err != nil {
			e.dropIteration(err)
			continue
		}

		if state == e.cfg.TransitionState {
			transitions++
			if transitions >= e.cfg.TransitionCount {
				// the transition sweep itself is still captured;
				// the loop condition falsifies on the next pass
				log.Printf("transition state %d seen %d consecutive times, requesting shutdown", state, transitions)
				e.coord.Shutdown(TriggerTransition)
				transitions = 0
			}
		} else {
			transitions = 0
		}

		readings, err := e.reader.ReadAll()
		if err != nil {
			e.dropIteration(err)
			continue
		}

		s := buf.Row(row)
		s.FrontEnd = readings
		s.Stamp(now, strconv.Itoa(state), formatMHz(e.ctrl.Frequency()), fileStamp)

		if err := e.ctrl.Advance(); err != nil {
			// the row is already stamped and kept; drift is the
			// oscillator's problem, wiring faults are ours
			log.Printf("frequency advance: %v", err)
		}

		row++
		e.note(row, state, transitions)

		if row == buf.Cap() {
			e.pending <- buf
			buf = e.nextBuffer()
			row = 0
			e.mu.Lock()
			e.stats.Sweeps++
			e.mu.Unlock()
		}
	}
	return nil
}

// nextBuffer takes a buffer from the free list. On the happy path the other
// buffer has long been written and returned; if the sink is still behind,
// this blocks rather than scribbling on a buffer the sink owns, and says so.
func (e *Engine) nextBuffer() *Buffer {
	select {
	case b := <-e.free:
		return b
	default:
	}
	log.Print("sink has not returned a buffer yet, acquisition stalled")
	return <-e.free
}

func (e *Engine) sampleSupply(b *Buffer) {
	if e.cfg.SupplyChannel < 0 {
		return
	}
	raw, err := e.reader.ReadAux(e.cfg.SupplyChannel)
	if err != nil {
		log.Printf("supply voltage sample: %v", err)
		return
	}
	b.Supply = ads126x.Voltage(raw)
}

func (e *Engine) dropIteration(err error) {
	log.Printf("iteration abandoned: %v", err)
	e.mu.Lock()
	e.stats.Dropped++
	e.mu.Unlock()
}

func (e *Engine) note(row, state, transitions int) {
	e.mu.Lock()
	e.stats.Rows = row
	e.stats.SwitchState = state
	e.stats.Transitions = transitions
	e.stats.Frequency = e.ctrl.Frequency()
	e.mu.Unlock()
}

func formatMHz(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}
