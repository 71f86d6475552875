package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerRequestDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "delivery",
		Name:      "provider_request_duration_seconds",
		Help:      "Duration of HTTP requests to outbound providers.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"provider_name", "outcome"},
)
