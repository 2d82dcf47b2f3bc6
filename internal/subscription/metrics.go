package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardbridge_subscribers",
			Help: "Number of host subscribers grouped by channel",
		},
		[]string{"channel"},
	)

	// Labels: transition (start, stop)
	listenerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbridge_listener_transitions_total",
			Help: "Native listener activations and deactivations",
		},
		[]string{"transition"},
	)

	listenerStartFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbridge_listener_start_failures_total",
			Help: "Failed native listener start requests grouped by channel",
		},
		[]string{"channel"},
	)

	// Labels: channel, result (ok, failed)
	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbridge_deliveries_total",
			Help: "Results delivered to subscribers grouped by channel and outcome",
		},
		[]string{"channel", "result"},
	)
)

func recordDelivery(ch Channel, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	deliveries.WithLabelValues(ch.String(), result).Inc()
}
