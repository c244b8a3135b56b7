package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "huddle_realtime_active_subscriptions",
		Help: "The current number of live subscriptions held by subscription managers",
	}, []string{"kind"})

	activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_realtime_activations_total",
		Help: "The total number of feed activations attempted",
	}, []string{"kind"})

	connectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_realtime_connection_errors_total",
		Help: "Subscriptions that failed to establish or were dropped by the data source",
	}, []string{"kind"})

	discardedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_realtime_discarded_batches_total",
		Help: "Batches that arrived after their subscription was deactivated",
	}, []string{"kind"})
)
