package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	HeartbeatsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchberry",
			Name:      "heartbeats_accepted_total",
			Help:      "Total accepted heartbeats.",
		},
		[]string{"party"},
	)

	HeartbeatsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchberry",
			Name:      "heartbeats_rejected_total",
			Help:      "Total rejected heartbeats, by offending party and reason.",
		},
		[]string{"party", "reason"},
	)

	PartiesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchberry",
			Name:      "parties",
			Help:      "Number of parties per liveness status.",
		},
		[]string{"status"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "watchberry",
			Name:      "sweep_duration_seconds",
			Help:      "Latency of one liveness sweep pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "watchberry",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(HeartbeatsAccepted, HeartbeatsRejected, PartiesByStatus, SweepDuration, uptime)
}

// MetricsHandler exposes /metrics. Mount it with
// mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
