package phoneauth

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricSendSuccess counts successful code sends, resends included.
	MetricSendSuccess MetricID = iota
	// MetricSendFailure counts failed code sends.
	MetricSendFailure
	// MetricResendCooldownHit counts resends rejected by the cooldown.
	MetricResendCooldownHit
	// MetricConfirmSuccess counts confirmed codes.
	MetricConfirmSuccess
	// MetricConfirmFailure counts rejected or invalid confirmations.
	MetricConfirmFailure
	// MetricConfirmAttemptsExceeded counts handles invalidated by the
	// attempt cap.
	MetricConfirmAttemptsExceeded
	// MetricWidgetInitFailure counts widget creation/render failures.
	MetricWidgetInitFailure
	// MetricBridgeSuccess counts sessions established by the bridge.
	MetricBridgeSuccess
	// MetricBridgeFailure counts bridge runs ending without a session.
	MetricBridgeFailure
	// MetricBridgeFallbackSignup counts sign-up fallbacks triggered for a
	// phone number that already had a profile. A persistently nonzero rate
	// here points at a synthetic-credential derivation problem.
	MetricBridgeFallbackSignup
	// MetricPasswordSignInSuccess counts password sign-ins.
	MetricPasswordSignInSuccess
	// MetricPasswordSignInFailure counts rejected password sign-ins.
	MetricPasswordSignInFailure
	// MetricPasswordSignUpSuccess counts password registrations.
	MetricPasswordSignUpSuccess
	// MetricPasswordSignUpFailure counts failed password registrations.
	MetricPasswordSignUpFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. All methods are safe for
// concurrent use and become no-ops when metrics are disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.Value(id)
	}
	return snap
}
