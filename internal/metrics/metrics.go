// Package metrics provides Prometheus metrics for the job queue.
// It tracks publish, delivery and acknowledgment traffic per queue, how long
// consumers wait for work, and the latency of the underlying store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "jobqueue"
)

// Message metrics track the queue protocol.
var (
	// MessagesPublishedTotal counts messages accepted into a ready list.
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages accepted into the queue",
		},
		[]string{"queue"},
	)

	// MessagesDeduplicatedTotal counts publishes dropped because the id was live.
	MessagesDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deduplicated_total",
			Help:      "Total number of publishes ignored because the identifier was already queued",
		},
		[]string{"queue"},
	)

	// MessagesDeliveredTotal counts messages handed to consumers.
	MessagesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered to consumers",
		},
		[]string{"queue", "mode"}, // mode: take, reserve
	)

	// MessagesFinishedTotal counts finish calls by outcome.
	MessagesFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_finished_total",
			Help:      "Total number of finish calls",
		},
		[]string{"queue", "result"}, // result: removed, missing
	)

	// MalformedEntriesTotal counts stored entries that failed to decode.
	MalformedEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_entries_total",
			Help:      "Total number of stored entries that could not be decoded",
		},
		[]string{"queue"},
	)
)

// Wait metrics track blocking consumers.
var (
	// WaitTimeoutsTotal counts waits that ended without a message.
	WaitTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Total number of waits that timed out without a message",
		},
		[]string{"queue", "mode"},
	)

	// WaitLatency measures how long consumers waited for a message.
	WaitLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_latency_seconds",
			Help:      "Time a consumer spent waiting in take or reserve in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"queue", "mode"},
	)

	// QueueDepth tracks the last observed number of ready messages.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Last observed number of ready messages in the queue",
		},
		[]string{"queue"},
	)
)

// Storage metrics track store operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"store", "operation"}, // store: redis, postgres
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)

// ObserveStorage records latency and outcome of one storage operation.
// It is meant to be deferred with a pointer to the named error result.
func ObserveStorage(store, operation string, start time.Time, errp *error) {
	StorageOperationLatency.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())

	status := "success"
	if errp != nil && *errp != nil {
		status = "failure"
	}
	StorageOperationsTotal.WithLabelValues(store, operation, status).Inc()
}
