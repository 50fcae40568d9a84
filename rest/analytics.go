package rest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	restRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_rest_requests_total",
			Help: "REST requests by method and status",
		},
		[]string{"method", "status"},
	)

	restRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandwich_rest_request_duration_seconds",
			Help:    "REST request round trip time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	restRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_rest_rate_limited_total",
			Help: "REST responses with status 429 by scope",
		},
		[]string{"scope"},
	)

	globalWaitGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandwich_rest_global_waiting",
			Help: "Requests waiting on the global rate limit",
		},
	)
)
