// Package metrics defines the prometheus collectors the HTTP surface and
// ingestion engine publish under /metrics, grounded on
// github.com/prometheus/client_golang as used by vjache-cie and
// distribution-distribution in the reference pack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts every HTTP request served, by route and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycache_http_requests_total",
		Help: "Total HTTP requests served by the binary-cache surface.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration tracks request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaycache_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// IngestTotal counts closure ingestion attempts by outcome.
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycache_ingest_total",
		Help: "Total closure ingestion attempts.",
	}, []string{"outcome"})

	// IngestPackagesAdded counts individual packages newly added across
	// all closure ingestions.
	IngestPackagesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaycache_ingest_packages_added_total",
		Help: "Total packages newly added to the object database.",
	})
)
