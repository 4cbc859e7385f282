package fleet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the fleet's prometheus collectors. A nil *Metrics records
// nothing, so callers never need to check.
type Metrics struct {
	nodeOutcomes *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	pollTicks    *prometheus.CounterVec
	fleetSize    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hdistcc",
				Subsystem: "fleet",
				Name:      "node_outcomes_total",
				Help:      "Per-node outcomes by operation and final state",
			},
			[]string{"operation", "state"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hdistcc",
				Subsystem: "fleet",
				Name:      "operation_duration_seconds",
				Help:      "Duration of fleet operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"operation", "success"},
		),
		pollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hdistcc",
				Subsystem: "fleet",
				Name:      "poll_ticks_total",
				Help:      "Backend and readiness polls issued, by phase",
			},
			[]string{"phase"},
		),
		fleetSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hdistcc",
				Subsystem: "fleet",
				Name:      "nodes",
				Help:      "Nodes seen by the last directory query",
			},
			[]string{"fleet"},
		),
	}
	reg.MustRegister(m.nodeOutcomes, m.opDuration, m.pollTicks, m.fleetSize)
	return m
}

func (m *Metrics) nodeOutcome(operation string, state NodeState) {
	if m == nil {
		return
	}
	m.nodeOutcomes.WithLabelValues(operation, state.String()).Inc()
}

func (m *Metrics) operationDone(operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.opDuration.WithLabelValues(operation, label).Observe(d.Seconds())
}

func (m *Metrics) pollTick(phase string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(phase).Inc()
}

func (m *Metrics) observeFleet(fleet string, size int) {
	if m == nil {
		return
	}
	m.fleetSize.WithLabelValues(fleet).Set(float64(size))
}
