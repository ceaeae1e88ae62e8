// Package metrics holds the Prometheus instruments for renewal runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "tello_renewal"

// Registry collects every renewal metric. It is separate from the default
// registry so a one-shot run can push exactly these series.
var Registry = prometheus.NewRegistry()

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Renewal runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a renewal run, settle delay included",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each step of the web flow",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"step", "status"},
	)

	DaysUntilRenewal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "days_until_renewal",
			Help:      "Days between today and the renewal date shown on the dashboard",
		},
	)

	LastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time a run last finished, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		RunsTotal,
		RunDuration,
		StepDuration,
		DaysUntilRenewal,
		LastRunTimestamp,
	)
}

// ObserveRun records the end of one run.
func ObserveRun(outcome string, started, finished time.Time) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.Observe(finished.Sub(started).Seconds())
	LastRunTimestamp.WithLabelValues(outcome).Set(float64(finished.Unix()))
}

// ObserveStep records one step of the web flow.
func ObserveStep(step string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}
