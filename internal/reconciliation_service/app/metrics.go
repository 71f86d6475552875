package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusChecksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation",
			Name:      "status_checks_total",
			Help:      "Provider status checks, by outcome.",
		},
		[]string{"outcome"},
	)
	statusTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation",
			Name:      "status_transitions_total",
			Help:      "Status transitions applied from provider replies.",
		},
		[]string{"from", "to"},
	)
	unmappedStatusCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation",
			Name:      "unmapped_provider_status_total",
			Help:      "Provider statuses outside the mapping table.",
		},
		[]string{"provider_name"},
	)
	reconcileDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reconciliation",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one reconciliation batch.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
