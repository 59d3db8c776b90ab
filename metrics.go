package rbacAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricOTPChallengeSent
	MetricOTPSuccess
	MetricOTPFailure
	MetricDeviceConfirmationRequired
	MetricDeviceConfirmed
	MetricDeviceConfirmFailure
	MetricSessionIssued
	MetricSessionRejected
	MetricAuthorizeSuccess
	MetricAuthorizeForbidden
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordRehashed
	MetricMFAEnabled
	MetricMFADisabled
	MetricAccountCreated
	MetricAccountDeactivated
	MetricNotificationFailure
	MetricAuthorizeLatency
	MetricLoginLatency
	metricIDCount
)

// LatencyBuckets are the histogram upper bounds. Observations above the
// last bound land in a final overflow bucket.
var LatencyBuckets = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// HistogramBucketCount includes the overflow bucket.
const HistogramBucketCount = len(LatencyBuckets) + 1

// latencySlot maps a latency metric to its histogram. Counter ids map to -1.
func latencySlot(id MetricID) int {
	switch id {
	case MetricAuthorizeLatency:
		return 0
	case MetricLoginLatency:
		return 1
	default:
		return -1
	}
}

var latencyIDs = [...]MetricID{MetricAuthorizeLatency, MetricLoginLatency}

// counter sits alone on a cache line; Authorize bumps counters from every
// request goroutine.
type counter struct {
	n uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	hist    [len(latencyIDs)][HistogramBucketCount]uint64
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are
// non-cumulative and follow LatencyBuckets plus the overflow bucket.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters switched per cfg. Histograms need both flags.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || latencySlot(id) >= 0 {
		return
	}
	atomic.AddUint64(&m.counts[id].n, 1)
}

// Observe records d for a latency metric. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	slot := latencySlot(id)
	if !m.LatencyEnabled() || slot < 0 {
		return
	}
	atomic.AddUint64(&m.hist[slot][bucketFor(d)], 1)
}

// Value returns the current count for a counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counts[id].n)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) < 0 {
			s.Counters[id] = atomic.LoadUint64(&m.counts[id].n)
		}
	}
	if m.latency {
		for slot, id := range latencyIDs {
			buckets := make([]uint64, HistogramBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.hist[slot][i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

// bucketFor returns the first bucket whose bound is at least d, compared
// at millisecond resolution.
func bucketFor(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range LatencyBuckets {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBuckets)
}
