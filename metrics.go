package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricSessionCreated MetricID = iota
	MetricSessionCreateFailure
	MetricVerifySuccess
	MetricVerifyFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRateLimited
	MetricRefreshReuseRevoked
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricSweepRemoved
	MetricStoreUnavailable
	MetricFailureMalformedToken
	MetricFailureInvalidSignature
	MetricFailureExpired
	MetricFailureSessionRevokedOrAbsent
	MetricFailureRefreshMismatch
	MetricVerifyLatency
	MetricRefreshLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets; the eighth bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// histogramIDs lists the latency ids in slot order.
var histogramIDs = [...]MetricID{MetricVerifyLatency, MetricRefreshLatency}

type paddedCounter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters, each on its own cache line. A nil or
// disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [len(histogramIDs)][histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and, when latency
// histograms are enabled, the per-bucket (non-cumulative) latency counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates counters for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	m.counters[id].Add(n)
}

// Observe records d in the histogram for id. Only latency ids carry
// histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if slot := histogramSlot(id); slot >= 0 {
		m.histograms[slot][bucketIndex(d)].Add(1)
	}
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(histogramIDs)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if histogramSlot(id) < 0 {
			s.Counters[id] = m.counters[id].Load()
		}
	}

	if m.enableLatency {
		for slot, id := range histogramIDs {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = m.histograms[slot][i].Load()
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func histogramSlot(id MetricID) int {
	for slot, hid := range histogramIDs {
		if hid == id {
			return slot
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
