package memory

import (
	"testing"
	"time"
)

func TestMonitorDisabledNeverBlocks(t *testing.T) {
	m := NewMonitor(Config{LimitBytes: 0, CheckInterval: time.Millisecond})
	// No limit, no GOMEMLIMIT assumption: monitor may pick up GOMEMLIMIT,
	// but it is never paused before Start.
	if m.IsPaused() {
		t.Fatal("fresh monitor reports paused")
	}

	done := make(chan struct{})
	go func() {
		m.WaitIfPaused()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused blocked on an unpaused monitor")
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	m := NewMonitor(Config{LimitBytes: 1 << 40, HighWaterMark: 0.7, CriticalWaterMark: 0.85, CheckInterval: time.Hour})

	// Force the paused state directly; the sampling loop is not running.
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()

	done := make(chan bool, 1)
	go func() {
		done <- m.WaitIfPaused()
	}()

	time.Sleep(10 * time.Millisecond)
	m.Stop()

	select {
	case ok := <-done:
		if ok {
			t.Error("WaitIfPaused returned true after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after Stop")
	}
}

func TestUsageUnlimited(t *testing.T) {
	m := &Monitor{limit: 0}
	if got := m.Usage(); got != 0 {
		t.Errorf("Usage() = %v for unlimited monitor, want 0", got)
	}
}
