// Package metrics holds the prometheus collectors observed by the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Name:      "runs_total",
		Help:      "Total arena runs by outcome",
	}, []string{"outcome"})

	StepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arena",
		Name:      "steps_total",
		Help:      "Total simulation ticks completed",
	})

	StepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Name:      "step_errors_total",
		Help:      "Total failed run phases",
	}, []string{"phase"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arena",
		Name:      "phase_duration_seconds",
		Help:      "Duration of each run phase",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"phase"})

	NodeStartup = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arena",
		Name:      "node_startup_seconds",
		Help:      "Time to launch the ephemeral node",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
