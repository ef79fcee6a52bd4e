// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// Configuration is read through viper from THUMBCACHE_* environment
// variables, an optional config file and command-line flags bound by the
// CLI. Nested keys use underscores in the environment, so preview.quality
// is THUMBCACHE_PREVIEW_QUALITY.
//
//   - root: directory used when a command gets no argument (default: .)
//   - workers: concurrent decoders, 0 for one per CPU (default: 0)
//   - preview.max_edge, preview.quality: stored preview size and JPEG quality (default: 256, 80)
//   - detect_renames: reuse previews of renamed files (default: true)
//   - store.open_timeout, store.op_timeout: store deadlines (default: 3s, 5s)
//   - codec.keep_alpha, codec.video_offset, codec.ffmpeg: decoder settings
//   - resolver.threshold, resolver.volumes_dir: path resolution (default: 0.85, /Volumes)
//   - view_cache_size: previews kept in memory by the server (default: 512)
//   - serve.addr, serve.log_requests, metrics.enabled: HTTP server
//   - log.level, log.file, log.max_size, log.max_backups, log.max_age, log.compress
//
// Invalid values are logged and replaced by their defaults. Memory limits
// are read separately by the memory package (GOMEMLIMIT, MEMORY_LIMIT).
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
