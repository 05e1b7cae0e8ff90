package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/highz-obs/filterbank/ads126x"
	"github.com/highz-obs/filterbank/daq"
)

var k = koanf.New(".")

// Pins is the BCM numbering of the oscillator control lines.
type Pins struct {
	Increment int `koanf:"increment" yaml:"increment"`
	Reset     int `koanf:"reset" yaml:"reset"`
	Power     int `koanf:"power" yaml:"power"`
}

// Config is the file-configurable surface of the acquisition binary.
// The sweep itself (row count and band) comes from the command line.
type Config struct {
	// OutputDir receives one FITS file per completed sweep.
	OutputDir string `koanf:"outputdir" yaml:"outputdir"`

	// Catalog is the path of the sqlite sweep index; empty disables it.
	Catalog string `koanf:"catalog" yaml:"catalog"`

	// StatusAddr is the listen address of the HTTP status endpoint;
	// empty disables it.
	StatusAddr string `koanf:"statusaddr" yaml:"statusaddr"`

	// Pins are the oscillator control lines.
	Pins Pins `koanf:"pins" yaml:"pins"`

	// ChipSelects are the SPI chip-select pins of the three front ends.
	ChipSelects []int `koanf:"chipselects" yaml:"chipselects"`

	// AuxChannels carry the switch state, ascending bit order.
	AuxChannels []int `koanf:"auxchannels" yaml:"auxchannels"`

	// Engine tunes the acquisition loop.
	Engine daq.EngineConfig `koanf:"engine" yaml:"engine"`
}

func defaultConfig() Config {
	return Config{
		OutputDir:   "/data/continuous_sweep",
		Catalog:     "/data/continuous_sweep/sweeps.db",
		StatusAddr:  "",
		Pins:        Pins{Increment: 4, Reset: 5, Power: 6},
		ChipSelects: []int{12, 22, 23},
		AuxChannels: []int{7, 8, 9},
		Engine: daq.EngineConfig{
			TransitionState: 0,
			TransitionCount: 3,
			SupplyChannel:   ads126x.MonitorChannel,
			SamplePeriod:    0 * time.Millisecond,
		},
	}
}

// loadConfig layers the yaml file, if present, over the defaults.
func loadConfig(path string) Config {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// a missing file just means defaults
		if !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config: %v", err)
		}
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatalf("error unmarshaling config: %v", err)
	}
	return c
}

// mkconf writes a starter config file with the defaults.
func mkconf(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(defaultConfig())
}
