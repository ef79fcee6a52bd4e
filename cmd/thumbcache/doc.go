// Package main provides the thumbcache command.
//
// thumbcache keeps a per-directory SQLite store of JPEG previews, ratings
// and colour tags, and relocates paths whose volume was remounted under
// another name.
//
// # Commands
//
//   - warm [dir...]: generate missing and stale previews, printing one line
//     per file and a summary per directory
//   - resolve <path...>: print the existing equivalent of each path
//   - rate <file> [rating] [--tag n]: store a rating and/or colour tag
//   - purge <dir...>: delete every stored preview of a directory
//   - serve: expose the same operations over HTTP
//   - version: print build information
//
// # Configuration
//
// Settings come from, in increasing precedence: built-in defaults, the file
// named by --config, THUMBCACHE_* environment variables (a .env file in the
// working directory is loaded first) and command-line flags. Nested keys map
// to variables with dots replaced by underscores, so preview.quality is
// THUMBCACHE_PREVIEW_QUALITY.
//
// # HTTP Server
//
// serve registers:
//
//   - GET /healthz, GET /livez, GET /version
//   - GET /metrics (unless metrics.enabled is false)
//   - GET|HEAD /api/preview?dir=&name=
//   - GET /api/resolve?path=
//   - POST /api/rating, POST /api/warm, POST /api/purge
//
// SIGINT and SIGTERM cancel running pipelines and shut the server down
// with a 30 second grace period.
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. FFmpeg is used for video and as
// a fallback decoder when present on PATH.
package main
