package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll cycle metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssf_relay_polls_total",
			Help: "Total number of upstream poll cycles by result",
		},
		[]string{"result"},
	)

	DevicesSeenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ssf_relay_devices_seen_total",
			Help: "Total number of device records returned by the upstream API",
		},
	)

	TransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ssf_relay_transitions_total",
			Help: "Total number of risk transitions detected",
		},
	)

	// Event pipeline metrics
	SetsSignedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ssf_relay_sets_signed_total",
			Help: "Total number of security event tokens signed",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssf_relay_deliveries_total",
			Help: "Total number of downstream delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ssf_relay_delivery_duration_seconds",
			Help:    "Duration of downstream delivery calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
