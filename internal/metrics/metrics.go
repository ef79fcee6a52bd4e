package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_pipeline_runs_active",
			Help: "Number of pipeline runs currently in progress",
		},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbcache_pipeline_run_duration_seconds",
			Help:    "Wall-clock duration of a pipeline run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	PipelineItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_pipeline_items_total",
			Help: "Total number of delivered items by cache status",
		},
		[]string{"status"},
	)

	PipelineWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_pipeline_workers",
			Help: "Size of the decode worker pool of the most recent run",
		},
	)

	PipelineDegradedRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_pipeline_degraded_runs_total",
			Help: "Pipeline runs that fell back to non-persistent mode",
		},
	)
)

// Codec metrics
var (
	CodecDecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_codec_decode_duration_seconds",
			Help:    "Time spent decoding a source file by format family",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"family"},
	)

	CodecDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_codec_decode_errors_total",
			Help: "Decode failures by format family and failure kind",
		},
		[]string{"family", "kind"},
	)

	CodecFFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_codec_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"family"},
	)
)

// Store metrics
var (
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_store_operations_total",
			Help: "Cache store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_store_operation_duration_seconds",
			Help:    "Cache store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	StoreUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_store_unavailable_total",
			Help: "Store open failures by reason",
		},
		[]string{"reason"},
	)

	StoreMigrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_store_migrations_total",
			Help: "Legacy stores migrated to the split rating/tag schema",
		},
	)
)

// Resolver metrics
var (
	ResolverResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_resolver_resolutions_total",
			Help: "Path resolutions by outcome",
		},
		[]string{"outcome"},
	)

	ResolverCandidatesChecked = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbcache_resolver_candidates_checked",
			Help:    "Number of candidate paths stat'ed per resolution",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// View cache metrics
var (
	ViewCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_viewcache_requests_total",
			Help: "View cache lookups by result",
		},
		[]string{"result"},
	)

	ViewCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_viewcache_entries",
			Help: "Number of previews held by the view cache",
		},
	)

	ViewCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_viewcache_evictions_total",
			Help: "Entries evicted from the view cache for capacity",
		},
	)

	StoresOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_stores_open",
			Help: "Number of directory stores currently held open",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_attempts_total",
			Help: "Retries issued after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_memory_paused",
			Help: "1 while decode work is paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_memory_gc_pauses_total",
			Help: "Times decode work was paused and a GC forced",
		},
	)
)

// HTTP metrics for the serve command
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)
)
