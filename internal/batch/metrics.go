package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topleads_batch_locked_records_total",
			Help: "Lead records set into a locked batch",
		},
	)

	finalizedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topleads_batch_finalized_records_total",
			Help: "Lead records finalized into the campaign",
		},
	)

	resetRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topleads_batch_reset_records_total",
			Help: "Lead records released by a batch reset",
		},
	)
)
