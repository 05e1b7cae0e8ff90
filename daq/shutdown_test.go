package daq_test

import (
	"sync"
	"testing"
	"time"

	"github.com/highz-obs/filterbank/daq"
)

func TestCoordinatorFirstTriggerWins(t *testing.T) {
	c := daq.NewCoordinator()
	if c.ShuttingDown() {
		t.Fatal("fresh coordinator already shutting down")
	}
	if c.Reason() != daq.TriggerNone {
		t.Fatalf("fresh coordinator reason = %v", c.Reason())
	}
	c.Shutdown(daq.TriggerTransition)
	c.Shutdown(daq.TriggerSignal)
	if !c.ShuttingDown() {
		t.Error("not shutting down after Shutdown")
	}
	if c.Reason() != daq.TriggerTransition {
		t.Errorf("reason = %v, want transition", c.Reason())
	}
}

func TestCoordinatorWakesWaiters(t *testing.T) {
	c := daq.NewCoordinator()
	done := make(chan struct{})
	go func() {
		<-c.Done()
		close(done)
	}()
	c.Shutdown(daq.TriggerSignal)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestCoordinatorConcurrentShutdown(t *testing.T) {
	c := daq.NewCoordinator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Shutdown(daq.TriggerSignal)
		}()
	}
	wg.Wait()
	if !c.ShuttingDown() {
		t.Error("not shutting down")
	}
}
