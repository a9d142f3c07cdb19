// Package metrics exposes the module's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolution passes by outcome
	// (ok, cycle, conflict, input-error).
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depflow_resolutions_total",
		Help: "Resolution passes by outcome.",
	}, []string{"outcome"})

	// ResolutionSeconds observes resolution pass latency.
	ResolutionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "depflow_resolution_seconds",
		Help:    "Duration of resolution passes.",
		Buckets: prometheus.DefBuckets,
	})

	// StepsTotal counts executed sequence steps by status.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depflow_steps_total",
		Help: "Executed sequence steps by status.",
	}, []string{"status"})
)

// ObserveResolution records one resolution pass.
func ObserveResolution(outcome string, start time.Time) {
	ResolutionsTotal.WithLabelValues(outcome).Inc()
	ResolutionSeconds.Observe(time.Since(start).Seconds())
}

// ObserveStep records one executed step.
func ObserveStep(status string) {
	StepsTotal.WithLabelValues(status).Inc()
}
