//go:build ads1263

package ads126x

/*
#cgo CFLAGS: -I/usr/local/include/ads1263
#cgo LDFLAGS: -L/usr/local/lib -lads1263

#include <stdlib.h>
#include "ADS1263.h"
*/
import "C"

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// resetPin is the shared reset line of the AD HAT stack.
const resetPin = 18

// Device wraps one physical AD HAT through the vendor SPI driver.
// The boards are distinguished by their chip-select pin.
type Device struct {
	cs     int
	drdy   int
	closed bool
}

// Open initializes the SPI link and the converter on the board selected by
// the given chip-select pin. The converter occasionally refuses its first
// init after a cold power-up, so initialization is retried with an
// exponential backoff the way the rest of our hardware bring-up does.
func Open(chipSelect int) (FrontEnd, error) {
	drdy := int(C.get_DRDYPIN(C.int(chipSelect)))
	d := &Device{cs: chipSelect, drdy: drdy}

	op := func() error {
		C.DEV_Module_Init(C.int(resetPin), C.int(chipSelect), C.int(drdy))
		C.ADS1263_reset(C.int(resetPin))
		if C.ADS1263_init_ADC1(C.ADS1263_38400SPS, C.int(chipSelect)) == 1 {
			return fmt.Errorf("converter on cs %d failed init", chipSelect)
		}
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      5 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		C.DEV_Module_Exit(C.int(chipSelect), C.int(drdy))
		return nil, err
	}
	C.ADS1263_SetMode(0)
	return d, nil
}

// ReadChannel reads a single channel.
func (d *Device) ReadChannel(channel int) (uint32, error) {
	if d.closed {
		return 0, ErrClosed
	}
	v := C.ADS1263_GetChannalValue(C.int(channel), C.int(d.cs), C.int(d.drdy))
	return uint32(v), nil
}

// ReadChannels reads the given channels in order in one driver call.
func (d *Device) ReadChannels(channels []int) ([]uint32, error) {
	if d.closed {
		return nil, ErrClosed
	}
	list := make([]C.UBYTE, len(channels))
	for i, ch := range channels {
		list[i] = C.UBYTE(ch)
	}
	out := make([]C.UDOUBLE, len(channels))
	C.ADS1263_GetAll(&list[0], &out[0], C.int(len(channels)), C.int(d.cs), C.int(d.drdy))
	vals := make([]uint32, len(channels))
	for i, v := range out {
		vals[i] = uint32(v)
	}
	return vals, nil
}

// Close shuts down the SPI link to the board.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	C.DEV_Module_Exit(C.int(d.cs), C.int(d.drdy))
	return nil
}
