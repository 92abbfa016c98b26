package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdkforge",
			Subsystem: "fetch",
			Name:      "distfile_total",
			Help:      "Total number of distfile fetch calls, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdkforge",
			Subsystem: "fetch",
			Name:      "distfile_duration_seconds",
			Help:      "Time spent downloading and verifying a distfile.",
		},
		[]string{"outcome"},
	)
	fetchDedupCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdkforge",
			Subsystem: "fetch",
			Name:      "dedup_total",
			Help:      "Number of fetch calls coalesced onto an in-flight transfer.",
		},
	)
)
