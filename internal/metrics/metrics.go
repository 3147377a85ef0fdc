// Package metrics provides Prometheus metrics for the switchboard relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAccepted counts messages durably appended, by author role.
	MessagesAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_messages_accepted_total",
			Help: "Total number of chat messages accepted and stored",
		},
		[]string{"role"},
	)

	// SubmitsRejected counts submissions that were not stored, by reason.
	SubmitsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_submits_rejected_total",
			Help: "Total number of chat submissions rejected",
		},
		[]string{"kind"},
	)

	// PushDelivered counts events enqueued onto a connection.
	PushDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_push_delivered_total",
			Help: "Total number of events enqueued to live connections",
		},
	)

	// PushDropped counts events dropped because a connection's queue was full
	// or already closed.
	PushDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_push_dropped_total",
			Help: "Total number of events dropped for slow or closed connections",
		},
	)

	// ConnectionsActive tracks live push connections by tier.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchboard_connections_active",
			Help: "Number of live push connections",
		},
		[]string{"tier"},
	)

	// AppendDuration tracks store append latency.
	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "switchboard_store_append_duration_seconds",
			Help:    "Duration of thread store appends",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
	)

	// NotificationsSent counts operator alerts by outcome.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_notifications_total",
			Help: "Total number of operator notifications attempted",
		},
		[]string{"kind", "outcome"},
	)
)

// Tier label values for ConnectionsActive.
const (
	TierGuest    = "guest"
	TierOperator = "operator"
)

// RecordPush records the outcome of one non-blocking delivery.
func RecordPush(delivered bool) {
	if delivered {
		PushDelivered.Inc()
	} else {
		PushDropped.Inc()
	}
}

// ConnectionOpened increments the live connection gauge.
func ConnectionOpened(operator bool) {
	ConnectionsActive.WithLabelValues(tier(operator)).Inc()
}

// ConnectionClosed decrements the live connection gauge.
func ConnectionClosed(operator bool) {
	ConnectionsActive.WithLabelValues(tier(operator)).Dec()
}

func tier(operator bool) string {
	if operator {
		return TierOperator
	}
	return TierGuest
}
