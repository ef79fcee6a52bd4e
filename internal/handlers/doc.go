// Package handlers implements the HTTP API of the serve command.
//
// Endpoints:
//   - GET /healthz, GET /livez: health and liveness probes
//   - GET /version: build information
//   - GET /api/preview?dir=&name=: the stored JPEG preview of a file
//   - GET /api/resolve?path=: an existing equivalent of a moved path
//   - POST /api/rating: set the rating and/or tag of a file
//   - POST /api/warm: generate previews for a directory and return the run statistics
//   - POST /api/purge: empty a directory's thumbnail store
//
// Handlers never create stores for reads; /api/preview answers 404 when a
// directory has none. Every path a request names must lie under the
// configured root, otherwise the answer is 403.
package handlers
