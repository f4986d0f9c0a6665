package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Planner relay invocations by outcome",
		},
		[]string{"outcome"},
	)

	snapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_snapshot_duration_seconds",
			Help:    "Time spent fetching the reference snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	upstreamTTFB = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_upstream_ttfb_seconds",
			Help:    "Time until the completion gateway answered with headers",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	streamBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_stream_bytes_total",
			Help: "Bytes relayed from the gateway to callers",
		},
	)
)
