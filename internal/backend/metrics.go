package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmcstatus_backend_requests_total",
		Help: "Merchant backend requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmcstatus_backend_request_duration_seconds",
		Help:    "Merchant backend request latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
