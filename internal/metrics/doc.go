// Package metrics provides Prometheus instrumentation for thumbcache.
//
// All metrics are registered through promauto and prefixed with
// "thumbcache_". They cover:
//
//   - Pipeline: runs by outcome, active runs, run duration, delivered items by
//     cache status (hit, miss, stale, renamed, passthrough, error), pool size
//     and runs degraded to non-persistent mode.
//   - Codec: decode duration and failures per format family, ffmpeg time.
//   - Store: operation counts and latency, open failures by reason, schema
//     migrations.
//   - Resolver: outcomes and candidate counts.
//   - View cache: hit/miss, size, evictions.
//   - Filesystem: per-volume operation latency and ESTALE retry behaviour,
//     recorded through the filesystem.Observer implemented in observer.go.
//   - Memory: usage ratio and backpressure pauses.
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
