package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments workflow runs and steps.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	stepsTotal  *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics registers orchestrator metrics with reg. A nil registerer
// leaves the metrics unregistered, which tests use to avoid collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "orchestrator",
				Name:      "workflow_runs_total",
				Help:      "Total workflow runs by terminal state",
			},
			[]string{"state"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "orchestrator",
				Name:      "workflow_steps_total",
				Help:      "Total workflow steps by agent and result",
			},
			[]string{"agent", "result"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "agentd",
				Subsystem: "orchestrator",
				Name:      "workflow_run_duration_seconds",
				Help:      "Duration of workflow runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) observeRun(state RunState, d time.Duration) {
	m.runsTotal.WithLabelValues(string(state)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) observeStep(agent, result string) {
	m.stepsTotal.WithLabelValues(agent, result).Inc()
}
