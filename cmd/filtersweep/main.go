// Command filtersweep measures the filter bank response in the calibration
// band. It steps the local oscillator from 900 to 960 MHz in 0.2 MHz
// increments and records one complete sweep at each of two output power
// levels, +5 dBm then -4 dBm, writing one FITS binary table per pass.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/theckman/yacspin"

	"github.com/highz-obs/filterbank/ads126x"
	"github.com/highz-obs/filterbank/daq"
	"github.com/highz-obs/filterbank/fitstab"
	"github.com/highz-obs/filterbank/gpio"
	"github.com/highz-obs/filterbank/sweep"
)

const (
	pinIncrement = 13
	pinReset     = 19
	pinPower     = 26

	// settle after stepping the oscillator before sampling
	rowSettle = 50 * time.Millisecond
	// LO output power stabilization between passes
	powerSettle = 2 * time.Second
)

var (
	calBand     = sweep.Range{Min: 900, Max: 960, Step: 0.2}
	powerLevels = []int{+5, -4}
	chipSelects = []int{12, 22, 23}
)

func main() {
	var (
		outDir   = flag.String("dir", "/data/calibration", "output directory for FITS files")
		simulate = flag.Bool("sim", false, "run against simulated hardware")
	)
	flag.Parse()

	if err := run(*outDir, *simulate); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
		StopColors:        []string{"fgGreen"},
	})
}

func run(outDir string, simulate bool) error {
	runID := uuid.NewString()
	fmt.Printf("filter calibration sweep %s\n", runID)
	fmt.Printf("band: %.1f-%.1f MHz, %.1f MHz steps, %d rows per pass\n",
		calBand.Min, calBand.Max, calBand.Step, calBand.Steps())
	fmt.Printf("power levels: %+d dBm, %+d dBm\n\n", powerLevels[0], powerLevels[1])

	start := time.Now()

	var (
		increment, reset, power gpio.Line
		bank                    *ads126x.Bank
	)
	if simulate {
		increment = gpio.NewMockLine(true)
		reset = gpio.NewMockLine(true)
		power = gpio.NewMockLine(false)
		bank, _ = ads126x.SimBank()
	} else {
		var err error
		if increment, err = gpio.OpenLine(pinIncrement, true); err != nil {
			return err
		}
		defer increment.Close()
		if reset, err = gpio.OpenLine(pinReset, true); err != nil {
			return err
		}
		defer reset.Close()
		if power, err = gpio.OpenLine(pinPower, false); err != nil {
			return err
		}
		defer power.Close()
		bank = &ads126x.Bank{}
		for i, cs := range chipSelects {
			fe, err := ads126x.Open(cs)
			if err != nil {
				return fmt.Errorf("front end %d: %w", i+1, err)
			}
			bank.Boards[i] = fe
		}
		defer bank.Close()
	}

	ctrl, err := sweep.NewController(increment, reset, calBand)
	if err != nil {
		return err
	}
	defer func() {
		// leave the counter parked at the band start and the LO off
		if err := ctrl.ResetSweep(); err != nil {
			log.Printf("sweep reset during teardown: %v", err)
		}
		if err := power.Set(false); err != nil {
			log.Printf("oscillator power-down: %v", err)
		}
	}()

	if err := ctrl.ResetSweep(); err != nil {
		return fmt.Errorf("initial sweep reset: %w", err)
	}
	if err := power.Set(true); err != nil {
		return fmt.Errorf("oscillator power-up: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	buf, err := daq.NewBuffer(calBand.Steps())
	if err != nil {
		return err
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupted)

	durations := make([]time.Duration, 0, len(powerLevels))
	for pass, dBm := range powerLevels {
		if pass > 0 {
			if err := ctrl.ResetSweep(); err != nil {
				return fmt.Errorf("sweep reset before pass %d: %w", pass+1, err)
			}
			fmt.Printf("\nwaiting for LO output to stabilize at %+d dBm\n", dBm)
			select {
			case s := <-interrupted:
				return fmt.Errorf("%v received, calibration abandoned", s)
			case <-time.After(powerSettle):
			}
		}

		passStart := time.Now()
		if err := measurePass(buf, bank, ctrl, dBm, interrupted); err != nil {
			return err
		}
		durations = append(durations, time.Since(passStart))

		w := &fitstab.Writer{
			Dir:       outDir,
			Variant:   fitstab.Calibration,
			Suffix:    fmt.Sprintf("_%+ddBm", dBm),
			RunID:     runID,
			FreqStart: calBand.Min,
			FreqEnd:   calBand.Max,
		}
		path, size, err := w.WriteBuffer(buf)
		if err != nil {
			return fmt.Errorf("pass %d: %w", pass+1, err)
		}
		fmt.Printf("pass %d (%+d dBm) written to %s (%d bytes, %v)\n",
			pass+1, dBm, path, size, durations[pass].Round(time.Millisecond))
		buf.Clear()
	}

	fmt.Println("\ntiming summary")
	for i, d := range durations {
		fmt.Printf("  pass %d (%+d dBm): %v\n", i+1, powerLevels[i], d.Round(time.Millisecond))
	}
	fmt.Printf("  total wall time: %v\n", time.Since(start).Round(time.Second))
	return nil
}

// measurePass fills buf with one complete sweep of the calibration band at
// the given output power, advancing the oscillator after each row.
func measurePass(buf *daq.Buffer, bank *ads126x.Bank, ctrl *sweep.Controller, dBm int, interrupted <-chan os.Signal) error {
	spin, err := newSpinner()
	if err != nil {
		return err
	}
	spin.Suffix(fmt.Sprintf(" sweep at %+d dBm", dBm))
	spin.Start()
	defer spin.StopFail()

	label := fmt.Sprintf("%+d", dBm)
	fileName := time.Now().Format(daq.TimeFormat)
	for i := 0; i < buf.Cap(); i++ {
		select {
		case s := <-interrupted:
			return fmt.Errorf("%v received, calibration abandoned", s)
		default:
		}

		freq := ctrl.Frequency()
		spin.Message(fmt.Sprintf("%.1f MHz (%d/%d)", freq, i+1, buf.Cap()))
		time.Sleep(rowSettle)

		raw, err := bank.ReadAll()
		if err != nil {
			return fmt.Errorf("row %d (%.1f MHz): %w", i, freq, err)
		}
		row := buf.Row(i)
		row.FrontEnd = raw
		row.Stamp(time.Now(), label, fmt.Sprintf("%.1f", freq), fileName)

		if err := ctrl.Advance(); err != nil {
			return fmt.Errorf("advancing past %.1f MHz: %w", freq, err)
		}
	}
	return spin.Stop()
}
