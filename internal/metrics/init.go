package metrics

import "thumbcache/internal/mediatypes"

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, outcome := range []string{"completed", "cancelled"} {
		PipelineRunsTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"hit", "miss", "stale", "renamed", "passthrough", "error"} {
		PipelineItemsTotal.WithLabelValues(status)
	}

	for _, f := range mediatypes.Families() {
		CodecDecodeDuration.WithLabelValues(f.String())
		for _, kind := range []string{"unsupported", "corrupt", "unreadable"} {
			CodecDecodeErrors.WithLabelValues(f.String(), kind)
		}
	}
	for _, f := range []string{"raster", "layered", "extended", "video"} {
		CodecFFmpegDuration.WithLabelValues(f)
	}

	for _, op := range []string{"open", "lookup", "lookup_many", "upsert", "update_rating",
		"update_tag", "find_by_hash", "delete", "purge"} {
		StoreOperationsTotal.WithLabelValues(op, "success")
		StoreOperationsTotal.WithLabelValues(op, "error")
		StoreOperationDuration.WithLabelValues(op)
	}
	for _, reason := range []string{"timeout", "not_writable", "engine"} {
		StoreUnavailableTotal.WithLabelValues(reason)
	}

	for _, outcome := range []string{"verbatim", "longest_match", "fuzzy", "ancestor", "not_found"} {
		ResolverResolutionsTotal.WithLabelValues(outcome)
	}

	for _, result := range []string{"hit", "miss"} {
		ViewCacheRequests.WithLabelValues(result)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		FilesystemOperationDuration.WithLabelValues("unknown", op)
		FilesystemOperationErrors.WithLabelValues("unknown", op)
		FilesystemRetryAttempts.WithLabelValues(op, "unknown")
		FilesystemRetrySuccess.WithLabelValues(op, "unknown")
		FilesystemRetryFailures.WithLabelValues(op, "unknown")
		FilesystemRetryDuration.WithLabelValues(op, "unknown")
		FilesystemStaleErrors.WithLabelValues(op, "unknown")
	}
}
