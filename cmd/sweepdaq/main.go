// Command sweepdaq is the continuous acquisition program of the filter bank
// instrument. It sweeps the local oscillator across the observing band while
// sampling the three AD HAT front ends, and writes one FITS binary table per
// completed sweep. It exits on its own once the RF switch reports the
// transition state for enough consecutive sweeps, handing the hardware to
// the calibration program.
//
// Usage:
//
//	sweepdaq [flags] <nrows> <start_freq> <end_freq>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/highz-obs/filterbank/ads126x"
	"github.com/highz-obs/filterbank/catalog"
	"github.com/highz-obs/filterbank/daq"
	"github.com/highz-obs/filterbank/fitstab"
	"github.com/highz-obs/filterbank/gpio"
	"github.com/highz-obs/filterbank/status"
	"github.com/highz-obs/filterbank/sweep"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <nrows> <start_freq> <end_freq>

nrows, start_freq and end_freq are positive integers: the rows per sweep
buffer and the sweep band edges in MHz.

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	var (
		configPath = flag.String("config", "sweepdaq.yml", "path to the yaml config file")
		writeConf  = flag.Bool("mkconf", false, "write a starter config file and exit")
		simulate   = flag.Bool("sim", false, "run against simulated hardware")
		statusAddr = flag.String("status", "", "status HTTP listen address, overrides config")
	)
	flag.Usage = usage
	flag.Parse()

	if *writeConf {
		if err := mkconf(*configPath); err != nil {
			log.Fatalf("writing config: %v", err)
		}
		return
	}

	args := flag.Args()
	if len(args) != 3 {
		usage()
		os.Exit(1)
	}
	var vals [3]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil || v <= 0 {
			fmt.Fprintf(os.Stderr, "argument %q must be a positive integer\n", a)
			os.Exit(1)
		}
		vals[i] = v
	}
	nrows, startFreq, endFreq := vals[0], vals[1], vals[2]

	cfg := loadConfig(*configPath)
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	if err := run(cfg, nrows, startFreq, endFreq, *simulate); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// hardware bundles everything run must tear down.
type hardware struct {
	increment, reset, power gpio.Line
	bank                    *ads126x.Bank
}

// teardown powers the oscillator down and releases every handle. It is
// called unconditionally, whatever path run exits by.
func (h *hardware) teardown(ctrl *sweep.Controller) {
	log.Print("shutting down hardware")
	if ctrl != nil {
		if err := ctrl.ResetSweep(); err != nil {
			log.Printf("sweep reset during teardown: %v", err)
		}
	}
	if h.power != nil {
		if err := h.power.Set(false); err != nil {
			log.Printf("oscillator power-down: %v", err)
		}
		h.power.Close()
	}
	if h.increment != nil {
		h.increment.Close()
	}
	if h.reset != nil {
		h.reset.Close()
	}
	if h.bank != nil {
		if err := h.bank.Close(); err != nil {
			log.Printf("front end shutdown: %v", err)
		}
	}
}

// setup opens the control lines and front ends and powers the oscillator.
func setup(cfg Config, simulate bool) (*hardware, error) {
	h := &hardware{}
	if simulate {
		log.Print("running against simulated hardware")
		h.increment = gpio.NewMockLine(true)
		h.reset = gpio.NewMockLine(true)
		h.power = gpio.NewMockLine(false)
		h.bank, _ = ads126x.SimBank()
	} else {
		var err error
		if h.increment, err = gpio.OpenLine(cfg.Pins.Increment, true); err != nil {
			return h, err
		}
		if h.reset, err = gpio.OpenLine(cfg.Pins.Reset, true); err != nil {
			return h, err
		}
		if h.power, err = gpio.OpenLine(cfg.Pins.Power, false); err != nil {
			return h, err
		}
		if len(cfg.ChipSelects) != daq.NumFrontEnds {
			return h, fmt.Errorf("config must list %d chip selects, got %d", daq.NumFrontEnds, len(cfg.ChipSelects))
		}
		h.bank = &ads126x.Bank{}
		for i, cs := range cfg.ChipSelects {
			fe, err := ads126x.Open(cs)
			if err != nil {
				return h, fmt.Errorf("front end %d: %w", i+1, err)
			}
			h.bank.Boards[i] = fe
		}
	}

	// power the oscillator and give it time to stabilize
	if err := h.power.Set(true); err != nil {
		return h, fmt.Errorf("oscillator power-up: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	return h, nil
}

func run(cfg Config, nrows, startFreq, endFreq int, simulate bool) error {
	runID := uuid.NewString()
	log.Printf("acquisition run %s: %d rows, %d-%d MHz", runID, nrows, startFreq, endFreq)

	band := sweep.Range{Min: float64(startFreq), Max: float64(endFreq), Step: 2}
	if err := band.Validate(); err != nil {
		return err
	}

	bufA, err := daq.NewBuffer(nrows)
	if err != nil {
		return err
	}
	bufB, err := daq.NewBuffer(nrows)
	if err != nil {
		return err
	}

	h, err := setup(cfg, simulate)
	var ctrl *sweep.Controller
	defer func() { h.teardown(ctrl) }()
	if err != nil {
		return err
	}

	ctrl, err = sweep.NewController(h.increment, h.reset, band)
	if err != nil {
		return err
	}
	// align the external counter with our tracked frequency
	if err := ctrl.ResetSweep(); err != nil {
		return fmt.Errorf("initial sweep reset: %w", err)
	}

	if len(cfg.AuxChannels) != sweep.NumStateBits {
		return fmt.Errorf("config must list %d aux channels, got %d", sweep.NumStateBits, len(cfg.AuxChannels))
	}
	var aux [sweep.NumStateBits]int
	copy(aux[:], cfg.AuxChannels)
	det := sweep.NewStateDetector(h.bank, aux)

	coord := daq.NewCoordinator()
	eng, err := daq.NewEngine(h.bank, det, ctrl, coord, cfg.Engine, bufA, bufB)
	if err != nil {
		return err
	}

	writer := &fitstab.Writer{
		Dir:       cfg.OutputDir,
		Variant:   fitstab.Acquisition,
		RunID:     runID,
		FreqStart: band.Min,
		FreqEnd:   band.Max,
	}
	if cfg.Catalog != "" {
		cat, err := catalog.Open(cfg.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()
		writer.Catalog = cat
	}
	sink := &fitstab.Sink{Writer: writer}

	status.Serve(cfg.StatusAddr, func() status.Report {
		return status.Report{Run: runID, Engine: eng.Stats(), Sink: sink.Stats()}
	})

	// the interrupt watcher only trips the flag; all cleanup happens here
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Printf("%v received, shutting down", s)
		coord.Shutdown(daq.TriggerSignal)
	}()
	defer signal.Stop(sigs)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(eng.Pending(), eng.Release)
	}()

	err = eng.Run()
	wg.Wait()
	if err != nil {
		return err
	}

	st := sink.Stats()
	log.Printf("run %s complete (%s): %d sweeps written, %d lost", runID, coord.Reason(), st.Written, st.Failed)
	return nil
}
