package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_store_operations_total",
			Help: "Datastore operations by driver, operation and result.",
		},
		[]string{"driver", "op", "result"},
	)
	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_store_operation_duration_seconds",
			Help:    "Datastore operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "op"},
	)

	snapshotLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_snapshot_lookups_total",
			Help: "Snapshot cache lookups, labelled hit or miss.",
		},
		[]string{"result"},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Ledger events handed to the broker, by event type and result.",
		},
		[]string{"type", "result"},
	)
)

func ObserveHTTPRequest(route, method string, status int, dur time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveStoreOp(driver, op string, err error, dur time.Duration) {
	storeOpsTotal.WithLabelValues(driver, op, result(err)).Inc()
	storeOpDurationSeconds.WithLabelValues(driver, op).Observe(dur.Seconds())
}

func ObserveSnapshotLookup(hit bool) {
	if hit {
		snapshotLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	snapshotLookupsTotal.WithLabelValues("miss").Inc()
}

func ObserveEventPublished(eventType string, err error) {
	eventsPublishedTotal.WithLabelValues(eventType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
