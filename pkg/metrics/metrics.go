// Package metrics exposes the Prometheus registry shared by the catalog client.
// Metrics are defined next to the code that records them (client, ratelimit,
// pagination, catalog) and registered through promauto, so importing those
// packages is enough to make them available here.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every promauto metric is added to.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists every metric the client records.
var Names = []string{
	"spotify_rate_limit_wait_seconds",
	"spotify_rate_limit_grants_total",
	"spotify_rate_limit_cancelled_total",
	"spotify_requests_total",
	"spotify_request_duration_seconds",
	"spotify_errors_total",
	"spotify_retries_total",
	"spotify_retry_backoff_seconds",
	"spotify_retry_exhausted_total",
	"spotify_pagination_pages_total",
	"spotify_pagination_discrepancies_total",
	"spotify_batch_chunks_total",
	"spotify_catalog_album_type_failures_total",
	"spotify_catalog_fetches_total",
	"spotify_catalog_fetch_duration_seconds",
	"spotify_orchestrator_in_flight",
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - spotify_rate_limit_wait_seconds{backend} (Histogram): Time spent waiting for a request slot
//   - spotify_rate_limit_grants_total{backend} (Counter): Request slots granted (backend: memory, redis)
//   - spotify_rate_limit_cancelled_total{backend} (Counter): Waits abandoned on cancellation
//
// Request Metrics (pkg/client):
//   - spotify_requests_total{endpoint, status} (Counter): Attempts by endpoint template and HTTP status
//   - spotify_request_duration_seconds{endpoint} (Histogram): Attempt duration by endpoint template
//   - spotify_errors_total{kind} (Counter): Failed attempts by kind (transient, rate_limited, permanent)
//
// Retry Metrics (pkg/client):
//   - spotify_retries_total{kind} (Counter): Retries by error kind
//   - spotify_retry_backoff_seconds{kind} (Histogram): Wait before each retry
//   - spotify_retry_exhausted_total{kind} (Counter): Operations that used up the retry budget
//
// Pagination Metrics (pkg/pagination):
//   - spotify_pagination_pages_total{listing} (Counter): Pages fetched by listing
//   - spotify_pagination_discrepancies_total{listing} (Counter): Listings whose item count differs from the reported total
//   - spotify_batch_chunks_total{outcome} (Counter): Batch lookups by outcome (ok, failed)
//
// Catalog Metrics (pkg/catalog):
//   - spotify_catalog_album_type_failures_total{album_type, kind} (Counter): Album type queries lost after retries
//   - spotify_catalog_fetches_total{outcome} (Counter): Artist fetches (complete, partial, failed)
//   - spotify_catalog_fetch_duration_seconds (Histogram): Artist fetch duration
//   - spotify_orchestrator_in_flight (Gauge): Artist fetches running
//
// Example Prometheus Queries:
//
//   # Throttling pressure
//   sum(rate(spotify_errors_total{kind="rate_limited"}[5m]))
//
//   # Retry budget exhaustion by kind
//   sum by (kind) (rate(spotify_retry_exhausted_total[15m]))
//
//   # Incomplete catalogs
//   sum(rate(spotify_catalog_fetches_total{outcome!="complete"}[1h]))
//
//   # Compilation queries lost
//   spotify_catalog_album_type_failures_total{album_type="compilation"}
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(spotify_request_duration_seconds_bucket[5m]))
