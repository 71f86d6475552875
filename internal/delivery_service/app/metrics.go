package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "notifications_dispatched_total",
			Help:      "Notifications handled by the dispatcher, by channel and outcome.",
		},
		[]string{"channel", "status"},
	)
	smsAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "provider_attempts_total",
			Help:      "Individual provider calls, by provider and outcome.",
		},
		[]string{"provider_name", "outcome"},
	)
	smsFailuresLoggedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "sms_failures_logged_total",
			Help:      "SMS deliveries written to the failure log.",
		},
	)
	markSentErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "mark_sent_errors_total",
			Help:      "Delivered notifications the store failed to mark sent.",
		},
	)
	dispatchDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "delivery",
			Name:      "dispatch_cycle_duration_seconds",
			Help:      "Duration of one dispatcher cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
