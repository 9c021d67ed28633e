// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hszk-dev/abrpack/internal/domain/repository"
)

const namespace = "abrpack"

var (
	// PipelineRunsTotal tracks ingest pipeline runs.
	// Labels:
	//   - segment_type: original, ts, fmp4
	//   - result: success, failure, cancelled
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of packaging pipeline runs",
		},
		[]string{"segment_type", "result"},
	)

	// RenditionEncodesTotal tracks individual rendition encodes.
	// Labels:
	//   - label: 1080p, 720p, 480p, 360p
	//   - result: success, failure, cancelled
	RenditionEncodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rendition_encodes_total",
			Help:      "Total number of rendition encodes",
		},
		[]string{"label", "result"},
	)

	// RenditionEncodeDuration observes wall time per rendition encode.
	RenditionEncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rendition_encode_duration_seconds",
			Help:      "Duration of rendition encodes in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"label"},
	)

	// CatalogOperationsTotal tracks catalog store operations.
	// Labels:
	//   - operation: insert, select, find, update, delete
	//   - status: success, error
	CatalogOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_operations_total",
			Help:      "Total number of catalog operations",
		},
		[]string{"operation", "status"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks API requests by route pattern.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Pipeline and encode result constants.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Catalog operation constants.
const (
	CatalogOpInsert = "insert"
	CatalogOpSelect = "select"
	CatalogOpFind   = "find"
	CatalogOpUpdate = "update"
	CatalogOpDelete = "delete"
)

// Catalog status constants.
const (
	CatalogStatusSuccess  = "success"
	CatalogStatusNotFound = "not_found"
	CatalogStatusError    = "error"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// CatalogStatus maps an operation error to a status label.
func CatalogStatus(err error) string {
	switch {
	case err == nil:
		return CatalogStatusSuccess
	case errors.Is(err, repository.ErrPackageNotFound):
		return CatalogStatusNotFound
	default:
		return CatalogStatusError
	}
}
