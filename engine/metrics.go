package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for graph runs. A nil *Metrics
// records nothing.
type Metrics struct {
	nodeRuns    *prometheus.CounterVec
	nodeLatency *prometheus.HistogramVec
	runSteps    prometheus.Histogram
	runFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimgraph",
			Subsystem: "engine",
			Name:      "node_executions_total",
			Help:      "Node executions by node and status.",
		}, []string{"node", "status"}),
		nodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nimgraph",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Node execution latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"node"}),
		runSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nimgraph",
			Subsystem: "engine",
			Name:      "run_steps",
			Help:      "Supersteps taken by completed runs.",
			Buckets:   prometheus.LinearBuckets(1, 2, 13),
		}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimgraph",
			Subsystem: "engine",
			Name:      "run_failures_total",
			Help:      "Runs that ended with an error, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.nodeRuns, m.nodeLatency, m.runSteps, m.runFailures)
	}
	return m
}

func (m *Metrics) observeNode(name, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.nodeRuns.WithLabelValues(name, status).Inc()
	m.nodeLatency.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) runFinished(steps int) {
	if m == nil {
		return
	}
	m.runSteps.Observe(float64(steps))
}

func (m *Metrics) runFailed(kind string) {
	if m == nil {
		return
	}
	m.runFailures.WithLabelValues(kind).Inc()
}
