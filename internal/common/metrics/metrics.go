// Package metrics holds the Prometheus instruments for the incident pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed listener
	FeedMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incidents_feed_messages_received_total",
			Help: "STOMP frames received from the incidents topic",
		},
	)

	FeedMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_feed_messages_dropped_total",
			Help: "Frames dropped before reaching the pipeline",
		},
		[]string{"reason"}, // "decompress", "decode", "queue_full", "frame_error"
	)

	FeedQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incidents_feed_queue_depth",
			Help: "Decoded messages waiting for the pipeline loop",
		},
	)

	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incidents_feed_connected",
			Help: "1 while the STOMP subscription is live",
		},
	)

	// Normalizer
	NormalizeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_normalize_failures_total",
			Help: "Messages rejected by the normalizer",
		},
		[]string{"field"},
	)

	// Reconciler
	IncidentsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incidents_persisted_total",
			Help: "Incident rows created",
		},
	)

	RoutesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_routes_resolved_total",
			Help: "Affected routes looked up against the service table",
		},
		[]string{"result"}, // "matched", "unmatched"
	)

	AssignmentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incidents_service_assignments_total",
			Help: "service_assignment rows written",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "incidents_reconcile_duration_seconds",
			Help:    "Time spent resolving and persisting one incident",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notifier
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_notifications_total",
			Help: "Fan-out publish attempts by channel and outcome",
		},
		[]string{"channel", "status"}, // status: "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "incidents_circuit_breaker_state",
			Help: "0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	// Pipeline loop
	LastProcessedTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incidents_last_processed_timestamp_seconds",
			Help: "Unix time of the last message taken off the queue",
		},
	)
)
