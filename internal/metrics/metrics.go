// Package metrics defines the Prometheus instrumentation for the search core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamsieve",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	DriverRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamsieve",
		Name:      "driver_requests_total",
		Help:      "Total search driver invocations by indexer and outcome.",
	}, []string{"indexer", "status"})

	DriverRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamsieve",
		Name:      "driver_request_duration_seconds",
		Help:      "Search driver request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"indexer"})

	ProbeResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamsieve",
		Name:      "probe_results_total",
		Help:      "Health probe outcomes by indexer and result.",
	}, []string{"indexer", "result"})

	IndexerEnabled = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamsieve",
		Name:      "indexer_enabled",
		Help:      "Whether an indexer is enabled (1) or tripped by the circuit breaker (0).",
	}, []string{"indexer"})

	SolverQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamsieve",
		Name:      "solver_queue_depth",
		Help:      "Number of challenge-solver requests waiting in the serial queue.",
	})

	SolverRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamsieve",
		Name:      "solver_request_duration_seconds",
		Help:      "Challenge solver request duration in seconds.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
	})

	SearchResultsReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamsieve",
		Name:      "search_results_returned",
		Help:      "Number of results returned per dispatcher search.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		DriverRequestsTotal,
		DriverRequestDuration,
		ProbeResultsTotal,
		IndexerEnabled,
		SolverQueueDepth,
		SolverRequestDuration,
		SearchResultsReturned,
	)
}
