package monitor

import (
	"sync"
	"time"
)

// SendStats tracks timing statistics for one envelope type.
type SendStats struct {
	Count     int64
	Failures  int64
	TotalMs   int64
	MinMs     int64
	MaxMs     int64
	AverageMs int64
}

// MetricsSummary is a point-in-time copy of collected metrics.
type MetricsSummary struct {
	SendCounts    map[string]int64
	ReceiveCounts map[string]int64
	SendStats     map[string]SendStats
}

// MetricsCollector is a basic in-memory collector of send/receive metrics
// by envelope type. It can be fronted by an exporter later; nothing in it
// is transport-specific.
type MetricsCollector struct {
	mu            sync.RWMutex
	sendCounts    map[string]int64
	receiveCounts map[string]int64
	sendStats     map[string]*SendStats
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		sendCounts:    make(map[string]int64),
		receiveCounts: make(map[string]int64),
		sendStats:     make(map[string]*SendStats),
	}
}

// RecordSend records the outcome of one outbound send.
func (c *MetricsCollector) RecordSend(envelopeType string, duration time.Duration, success bool) {
	durationMs := duration.Milliseconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendCounts[envelopeType]++

	stats, ok := c.sendStats[envelopeType]
	if !ok {
		stats = &SendStats{MinMs: durationMs, MaxMs: durationMs}
		c.sendStats[envelopeType] = stats
	}

	stats.Count++
	if !success {
		stats.Failures++
	}
	stats.TotalMs += durationMs
	if durationMs < stats.MinMs {
		stats.MinMs = durationMs
	}
	if durationMs > stats.MaxMs {
		stats.MaxMs = durationMs
	}
}

// RecordReceive records one inbound envelope.
func (c *MetricsCollector) RecordReceive(envelopeType string) {
	c.mu.Lock()
	c.receiveCounts[envelopeType]++
	c.mu.Unlock()
}

// Summary returns a copy of the collected metrics.
func (c *MetricsCollector) Summary() MetricsSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := MetricsSummary{
		SendCounts:    make(map[string]int64, len(c.sendCounts)),
		ReceiveCounts: make(map[string]int64, len(c.receiveCounts)),
		SendStats:     make(map[string]SendStats, len(c.sendStats)),
	}

	for envelopeType, count := range c.sendCounts {
		summary.SendCounts[envelopeType] = count
	}
	for envelopeType, count := range c.receiveCounts {
		summary.ReceiveCounts[envelopeType] = count
	}
	for envelopeType, stats := range c.sendStats {
		copied := *stats
		if copied.Count > 0 {
			copied.AverageMs = copied.TotalMs / copied.Count
		}
		summary.SendStats[envelopeType] = copied
	}
	return summary
}
