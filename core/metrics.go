package core

// metrics.go – prometheus instrumentation shared by the node surfaces.
// Collectors register against a dedicated registry so embedding programs
// control exposure.

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the node collectors.
type Metrics struct {
	Registry *prometheus.Registry

	BlocksStored      prometheus.Counter
	ConflictsDetected *prometheus.CounterVec
	ConflictsResolved prometheus.Counter
	JobsQueued        prometheus.Counter
	JobsCompleted     prometheus.Counter
	JobsFailed        *prometheus.CounterVec
	MessagesSent      prometheus.Counter
	MessagesReceived  prometheus.Counter
	DisputesFiled     *prometheus.CounterVec
	PeerCount         prometheus.Gauge
	SystemHealth      prometheus.Gauge
}

// NewMetrics builds and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.BlocksStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "dag", Name: "blocks_stored_total",
		Help: "Blocks accepted by the local store.",
	})
	m.ConflictsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "dag", Name: "conflicts_detected_total",
		Help: "Structural conflicts detected, by type.",
	}, []string{"type"})
	m.ConflictsResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "dag", Name: "conflicts_resolved_total",
		Help: "Conflicts driven to resolution.",
	})
	m.JobsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "mesh", Name: "jobs_queued_total",
		Help: "Jobs accepted into the pending queue.",
	})
	m.JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "mesh", Name: "jobs_completed_total",
		Help: "Jobs completed with an anchored receipt.",
	})
	m.JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "mesh", Name: "jobs_failed_total",
		Help: "Jobs that reached a failure state, by reason.",
	}, []string{"reason"})
	m.MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "p2p", Name: "messages_sent_total",
		Help: "Outbound protocol messages.",
	})
	m.MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "p2p", Name: "messages_received_total",
		Help: "Inbound protocol messages.",
	})
	m.DisputesFiled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icn", Subsystem: "economics", Name: "disputes_filed_total",
		Help: "Economic disputes filed, by type.",
	}, []string{"type"})
	m.PeerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "icn", Subsystem: "p2p", Name: "peer_count",
		Help: "Currently connected peers.",
	})
	m.SystemHealth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "icn", Subsystem: "coordinator", Name: "system_health",
		Help: "Aggregate system health in [0, 1].",
	})

	m.Registry.MustRegister(
		m.BlocksStored, m.ConflictsDetected, m.ConflictsResolved,
		m.JobsQueued, m.JobsCompleted, m.JobsFailed,
		m.MessagesSent, m.MessagesReceived, m.DisputesFiled,
		m.PeerCount, m.SystemHealth,
	)
	return m
}

// ObserveStats folds a transport snapshot into the gauges.
func (m *Metrics) ObserveStats(stats NetworkStats) {
	m.PeerCount.Set(float64(stats.PeerCount))
}

// ObserveHealth folds the coordinator aggregate into the health gauge.
func (m *Metrics) ObserveHealth(h SystemHealthStatus) {
	m.SystemHealth.Set(h.Overall)
}
