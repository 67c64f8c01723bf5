package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Credit ledger
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_reservations_total",
			Help: "Credit reservation attempts by outcome",
		},
		[]string{"outcome"}, // granted|insufficient|unauthenticated|ledger_error
	)

	// Ingestion
	IngestedRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingested_rows_total",
			Help: "Total rows written to the analytics store",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(HTTPLatency)
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(IngestedRows)
	prometheus.MustRegister(WorkerQueueDepth)
}
