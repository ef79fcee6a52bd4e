/*
Package filesystem wraps os.Stat, os.Open and os.ReadDir with retry logic
for ESTALE (stale file handle) errors, which network shares return while a
volume reconnects.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE triggers a retry; every other error is returned immediately.
Backoff doubles from InitialBackoff (50ms) up to MaxBackoff (500ms) for at
most MaxRetries (3) retries.

Operations are labelled with a volume name for metrics. Labels come from the
RetryConfig's VolumeLabels or the package default set with
SetDefaultVolumeLabels; recording goes through the Observer installed with
SetObserver.
*/
package filesystem
