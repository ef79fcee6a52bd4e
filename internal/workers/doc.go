/*
Package workers sizes the bounded worker pools used by the thumbnail
pipeline.

Go 1.19+ sets GOMAXPROCS from the container CPU quota, while runtime.NumCPU
still reports the host. Pools sized from NumCPU oversubscribe a throttled
container, so every helper here starts from GOMAXPROCS(0):

	numWorkers := workers.ForCPU(8)    // decode + resample, max 8
	numWorkers := workers.Count(3.0, 0)

Operators can pin the size with THUMBCACHE_WORKERS; the value is still capped
by the limit passed by the caller. Invalid or non-positive values are ignored.
*/
package workers
