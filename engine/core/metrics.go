package core

import (
	"sync"
	"sync/atomic"
	"time"
)

const AVG_COUNT uint8 = 30

// CacheMetrics tracks signature cache traffic. Counters are lock free; the
// rolling miss latency window is guarded by its own mutex.
type CacheMetrics struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64

	mu             sync.Mutex
	missAVGCounter uint8
	missMStimes    [AVG_COUNT]float64
	missSamples    uint8
}

func (m *CacheMetrics) Hit() {
	m.hits.Add(1)
}

func (m *CacheMetrics) Failure() {
	m.failures.Add(1)
}

// Miss records a successful miss and how long building and realizing took.
func (m *CacheMetrics) Miss(elapsed time.Duration) {
	m.misses.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.missMStimes[m.missAVGCounter] = float64(elapsed.Microseconds()) / 1000.0
	m.missAVGCounter++
	m.missAVGCounter %= AVG_COUNT
	if m.missSamples < AVG_COUNT {
		m.missSamples++
	}
}

func (m *CacheMetrics) Hits() uint64 {
	return m.hits.Load()
}

func (m *CacheMetrics) Misses() uint64 {
	return m.misses.Load()
}

func (m *CacheMetrics) Failures() uint64 {
	return m.failures.Load()
}

// MissLatencyMS is the average over the last AVG_COUNT misses, in milliseconds.
func (m *CacheMetrics) MissLatencyMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missSamples == 0 {
		return 0
	}
	sum := 0.0
	for i := uint8(0); i < m.missSamples; i++ {
		sum += m.missMStimes[i]
	}
	return sum / float64(m.missSamples)
}

func (m *CacheMetrics) HitRate() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (m *CacheMetrics) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.failures.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.missAVGCounter = 0
	m.missSamples = 0
	m.missMStimes = [AVG_COUNT]float64{}
}
