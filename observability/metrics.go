package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics records node executions and the events they commit.
type StakingMetrics struct {
	calls     *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	events    *prometheus.CounterVec
	throttles *prometheus.CounterVec
	sequence  prometheus.Gauge
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// Staking returns the lazily-initialised metrics registry shared by the node
// and the RPC server.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = newStakingMetrics()
		prometheus.MustRegister(stakingRegistry.collectors()...)
	})
	return stakingRegistry
}

func newStakingMetrics() *StakingMetrics {
	return &StakingMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "props",
			Subsystem: "staking",
			Name:      "calls_total",
			Help:      "Protocol operations executed, segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "props",
			Subsystem: "staking",
			Name:      "errors_total",
			Help:      "Rejected protocol operations segmented by operation and error code.",
		}, []string{"op", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "props",
			Subsystem: "staking",
			Name:      "call_duration_seconds",
			Help:      "Latency of protocol operations including the state commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "props",
			Subsystem: "staking",
			Name:      "events_total",
			Help:      "Committed events segmented by type.",
		}, []string{"type"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "props",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Requests rejected before reaching the node.",
		}, []string{"reason"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "props",
			Subsystem: "staking",
			Name:      "sequence",
			Help:      "Sequence number of the last committed operation.",
		}),
	}
}

func (m *StakingMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.calls, m.errors, m.latency, m.events, m.throttles, m.sequence}
}

// ObserveCall records one operation. An empty code marks success.
func (m *StakingMetrics) ObserveCall(op, code string, duration time.Duration) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	outcome := "committed"
	if code != "" {
		outcome = "rejected"
		m.errors.WithLabelValues(op, code).Inc()
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEvent counts a committed event.
func (m *StakingMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// RecordThrottle counts a request turned away by the RPC layer. Reasons
// should be stable strings such as "rate_limit" or "duplicate".
func (m *StakingMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(reason)).Inc()
}

// SetSequence publishes the last committed sequence number.
func (m *StakingMetrics) SetSequence(seq uint64) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(seq))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
