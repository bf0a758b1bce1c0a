package utils

import (
	"sync"
	"time"
)

// Tracks performance metrics across the sync engine
type MetricsCollector struct {
	mu             sync.RWMutex
	eventsApplied  uint64
	eventsDropped  uint64
	eventsBuffered uint64
	duplicates     uint64

	// Maps operation name to list of latencies in nanoseconds
	operationTimes map[string][]int64

	sessionStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:   make(map[string][]int64),
		sessionStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementApplied() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.eventsApplied++
}

func (mc *MetricsCollector) IncrementDropped() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.eventsDropped++
}

func (mc *MetricsCollector) IncrementBuffered() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.eventsBuffered++
}

func (mc *MetricsCollector) IncrementDuplicates() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.duplicates++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.operationTimes[operationName]; !exists {
		mc.operationTimes[operationName] = make([]int64, 0)
	}
	mc.operationTimes[operationName] = append(
		mc.operationTimes[operationName],
		duration.Nanoseconds(),
	)
}

// MetricsSnapshot is a point-in-time copy of the collector's counters.
type MetricsSnapshot struct {
	EventsApplied  uint64
	EventsDropped  uint64
	EventsBuffered uint64
	Duplicates     uint64
	Uptime         time.Duration
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return MetricsSnapshot{
		EventsApplied:  mc.eventsApplied,
		EventsDropped:  mc.eventsDropped,
		EventsBuffered: mc.eventsBuffered,
		Duplicates:     mc.duplicates,
		Uptime:         time.Since(mc.sessionStartTime),
	}
}
