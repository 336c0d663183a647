package feasibility

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feasibility",
		Name:      "runs_total",
		Help:      "Feasibility checks by final state.",
	}, []string{"outcome"})
	metricPhaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feasibility",
		Name:      "phase_failures_total",
		Help:      "Failed checks by the phase that was active when they failed.",
	}, []string{"phase"})
	metricRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feasibility",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a feasibility check, session teardown included.",
		Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180},
	})
	metricActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "feasibility",
		Name:      "active_runs",
		Help:      "Checks currently holding a browser slot.",
	})
)

func recordRun(outcome State, seconds float64) {
	metricRunsTotal.WithLabelValues(string(outcome)).Inc()
	metricRunDuration.Observe(seconds)
}

func recordPhaseFailure(phase State) {
	metricPhaseFailures.WithLabelValues(string(phase)).Inc()
}
