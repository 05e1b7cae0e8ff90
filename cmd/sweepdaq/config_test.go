package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig()
	// the acquisition harness wiring: increment 4, reset 5, LO power 6
	if c.Pins.Increment != 4 || c.Pins.Reset != 5 || c.Pins.Power != 6 {
		t.Errorf("default pins = %+v, want increment 4, reset 5, power 6", c.Pins)
	}
	if want := []int{12, 22, 23}; len(c.ChipSelects) != 3 ||
		c.ChipSelects[0] != want[0] || c.ChipSelects[1] != want[1] || c.ChipSelects[2] != want[2] {
		t.Errorf("default chip selects = %v, want %v", c.ChipSelects, want)
	}
	if c.Engine.TransitionCount != 3 {
		t.Errorf("default transition count = %d, want 3", c.Engine.TransitionCount)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	c := loadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	if c.Pins != defaultConfig().Pins {
		t.Errorf("pins from missing file = %+v, want defaults %+v", c.Pins, defaultConfig().Pins)
	}
}

func TestMkconfRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweepdaq.yml")
	if err := mkconf(path); err != nil {
		t.Fatalf("mkconf: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	c := loadConfig(path)
	if c.Pins != defaultConfig().Pins {
		t.Errorf("reloaded pins = %+v, want %+v", c.Pins, defaultConfig().Pins)
	}
	if c.OutputDir != defaultConfig().OutputDir {
		t.Errorf("reloaded output dir = %q, want %q", c.OutputDir, defaultConfig().OutputDir)
	}
}
