/*Package gpio provides the digital output lines used to steer the local
oscillator: the edge-triggered increment and reset lines and the level-held
power line.

Only outputs are implemented; the acquisition engine is the sole owner of
every line for the process lifetime, so nothing here is concurrency safe.
*/
package gpio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Line is a single digital output.
type Line interface {
	// Set drives the line high (true) or low (false).
	Set(level bool) error

	// Close releases the line, leaving it at its last driven level.
	Close() error
}

// Pulse emits a falling-then-rising edge on the line, holding each level for
// the settle duration. The external frequency counter triggers on the
// falling edge; the settle keeps the pulse well inside its debounce window.
func Pulse(l Line, settle time.Duration) error {
	if err := l.Set(false); err != nil {
		return err
	}
	time.Sleep(settle)
	if err := l.Set(true); err != nil {
		return err
	}
	time.Sleep(settle)
	return nil
}

const sysfsRoot = "/sys/class/gpio"

// SysfsLine is a Line backed by the kernel sysfs GPIO interface.
type SysfsLine struct {
	pin int
	fd  int
}

// OpenLine exports the pin, configures it as an output at the given initial
// level, and holds the value file open for the lifetime of the line.
func OpenLine(pin int, initial bool) (*SysfsLine, error) {
	if err := writeFile(sysfsRoot+"/export", fmt.Sprintf("%d", pin)); err != nil {
		// EBUSY means the pin is already exported, likely from a
		// previous run that died before unexporting; carry on.
		if !isBusy(err) {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}
	dir := fmt.Sprintf("%s/gpio%d", sysfsRoot, pin)
	level := "low"
	if initial {
		level = "high"
	}
	if err := writeFile(dir+"/direction", level); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}
	fd, err := unix.Open(dir+"/value", unix.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio %d value: %w", pin, err)
	}
	return &SysfsLine{pin: pin, fd: fd}, nil
}

// Set drives the line high or low.
func (l *SysfsLine) Set(level bool) error {
	b := []byte{'0'}
	if level {
		b[0] = '1'
	}
	if _, err := unix.Pwrite(l.fd, b, 0); err != nil {
		return fmt.Errorf("write gpio %d: %w", l.pin, err)
	}
	return nil
}

// Close releases the value fd and unexports the pin.
func (l *SysfsLine) Close() error {
	if err := unix.Close(l.fd); err != nil {
		return err
	}
	return writeFile(sysfsRoot+"/unexport", fmt.Sprintf("%d", l.pin))
}

func writeFile(path, s string) error {
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	_, err = unix.Write(fd, []byte(s))
	return err
}

func isBusy(err error) bool {
	return err == unix.EBUSY
}
