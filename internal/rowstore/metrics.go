package rowstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topleads_rowstore_requests_total",
			Help: "Row-store HTTP calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	storeRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topleads_rowstore_retries_total",
			Help: "Transient row-store failures that were retried",
		},
	)

	storeCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topleads_rowstore_call_duration_seconds",
			Help:    "Row-store call duration including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
