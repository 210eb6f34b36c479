// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidingest"

var (
	// ChunksStoredTotal tracks chunk store calls.
	// Labels:
	//   - status: success, error
	ChunksStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_stored_total",
			Help:      "Total number of chunk store calls",
		},
		[]string{"status"},
	)

	// ChunkBytesTotal counts bytes written to chunk storage.
	ChunkBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Total bytes written to chunk storage",
		},
	)

	// AssembliesTotal tracks assembly attempts.
	// Labels:
	//   - result: success, retry, failed
	AssembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Total number of chunk assembly attempts",
		},
		[]string{"result"},
	)

	// ConversionsTotal tracks conversion attempts.
	// Labels:
	//   - format: mp4, webm, mov, avi
	//   - result: success, failed
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Total number of conversion attempts",
		},
		[]string{"format", "result"},
	)

	// ConversionDuration observes encoder wall time.
	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time spent running the encoder",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"format"},
	)

	// PipelineOperationsTotal tracks operations run by the conversion pipeline.
	// Labels:
	//   - operation: trim, resize, crop, frame_rate, watermark
	//   - status: executed, skipped
	PipelineOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_operations_total",
			Help:      "Total number of pipeline operations",
		},
		[]string{"operation", "status"},
	)

	// CacheOperationsTotal tracks progress store operations.
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

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update, delete
	//   - table: upload_sessions, upload_chunks
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks coalesced assembly deliveries.
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

	// JanitorRemovedTotal counts stale chunk directories purged.
	JanitorRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_removed_total",
			Help:      "Total number of stale chunk directories removed",
		},
	)
)

// Generic status constants.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Assembly and conversion result constants.
const (
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
)

// Pipeline operation status constants.
const (
	OperationExecuted = "executed"
	OperationSkipped  = "skipped"
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

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
	DBQueryDelete = "delete"
)

// Table name constants.
const (
	TableUploadSessions = "upload_sessions"
	TableUploadChunks   = "upload_chunks"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
