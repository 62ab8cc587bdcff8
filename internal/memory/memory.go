// Package memory provides a heap watermark monitor used to throttle the
// background decode pipeline. Decoding a burst of large images can spike the
// heap well past what the three-entry cache window suggests; the monitor
// pauses new decode work at the critical water mark and resumes it once usage
// falls back under the high water mark.
package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"image-viewer/internal/logging"
	"image-viewer/internal/metrics"
)

// Config holds memory monitor settings.
type Config struct {
	// LimitBytes is the soft heap limit. 0 means use GOMEMLIMIT if set,
	// otherwise monitoring is disabled.
	LimitBytes int64

	// HighWaterMark is the fraction of the limit below which paused work
	// resumes.
	HighWaterMark float64

	// CriticalWaterMark is the fraction of the limit at which new decode
	// work pauses.
	CriticalWaterMark float64

	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the default watermark settings.
func DefaultConfig() Config {
	return Config{
		LimitBytes:        0,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and exposes a pause signal for decode workers.
type Monitor struct {
	config Config
	limit  int64

	mu        sync.RWMutex
	current   uint64
	paused    bool
	pauseChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewMonitor creates a monitor. With no explicit limit it falls back to
// GOMEMLIMIT; with neither, the monitor is inert and WaitIfPaused never
// blocks.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if goLimit := debug.SetMemoryLimit(-1); goLimit > 0 && goLimit < 1<<62 {
			limit = goLimit
			logging.Info("memory monitor using GOMEMLIMIT: %.1f MB", float64(limit)/(1024*1024))
		}
	}
	if limit == 0 {
		logging.Debug("memory monitor: no limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		pauseChan: make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
}

// Start begins sampling. A no-op when no limit is configured.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop stops the monitor and releases any paused workers.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = stats.Alloc
	usage := float64(stats.Alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	if usage >= m.config.CriticalWaterMark && !m.paused {
		logging.Warn("memory critical (%.1f%% of limit), pausing decode work", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	} else if usage < m.config.HighWaterMark && m.paused {
		logging.Info("memory recovered (%.1f%% of limit), resuming decode work", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.pauseChan)
		m.pauseChan = make(chan struct{})
	}
}

// WaitIfPaused blocks while usage is above the critical water mark. It
// returns false only when the monitor is stopped while waiting.
func (m *Monitor) WaitIfPaused() bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	pauseChan := m.pauseChan
	m.mu.RUnlock()

	select {
	case <-pauseChan:
		return true
	case <-m.stopChan:
		return false
	}
}

// IsPaused reports whether decode work is currently paused.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns heap usage as a fraction of the limit, 0 if unlimited.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}
