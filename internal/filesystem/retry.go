// Package filesystem provides filesystem access helpers that tolerate NFS and
// SMB hiccups on network-mounted directories.
package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"thumbcache/internal/logging"
)

// VolumeLabels maps file paths to short volume labels for metric labeling,
// using longest-prefix matching on absolute paths.
type VolumeLabels struct {
	// sorted by path length descending
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute path with trailing slash
	name string
}

// NewVolumeLabels creates a labeler from a map of label → mount path.
func NewVolumeLabels(volumes map[string]string) *VolumeLabels {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}
		if !strings.HasSuffix(absPath, "/") {
			absPath += "/"
		}
		mounts = append(mounts, volumeMount{path: absPath, name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})

	return &VolumeLabels{mounts: mounts}
}

// Label returns the volume label for path, or "unknown".
func (vl *VolumeLabels) Label(path string) string {
	if vl == nil {
		return "unknown"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}

	for _, mount := range vl.mounts {
		if strings.HasPrefix(absPath+"/", mount.path) {
			return mount.name
		}
	}

	return "unknown"
}

var defaultLabels *VolumeLabels

// SetDefaultVolumeLabels sets the package-level labeler used when a
// RetryConfig carries none.
func SetDefaultVolumeLabels(vl *VolumeLabels) {
	defaultLabels = vl
}

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Labels overrides the package-level labeler for this operation.
	Labels *VolumeLabels
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) volume(path string) string {
	if c.Labels != nil {
		return c.Labels.Label(path)
	}
	return defaultLabels.Label(path)
}

// sleep is swapped out in tests.
var sleep = time.Sleep

// IsStale reports whether err is an NFS stale file handle error (ESTALE).
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn until it succeeds, fails with something other than
// ESTALE, or MaxRetries is exhausted.
func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	volume := config.volume(path)
	o := observe()
	backoff := config.InitialBackoff

	var zero T
	var lastErr error

	finish := func(err error) {
		if o != nil {
			o.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
		}
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
				if o != nil {
					o.ObserveRetrySuccess(op, volume)
					o.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
				}
			}
			finish(nil)
			return v, nil
		}

		lastErr = err
		if !IsStale(err) {
			finish(err)
			return zero, err
		}

		if o != nil {
			o.ObserveStaleError(op, volume)
		}

		if attempt < config.MaxRetries {
			if o != nil {
				o.ObserveRetryAttempt(op, volume)
			}
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	if o != nil {
		o.ObserveRetryFailure(op, volume)
		o.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
	}
	finish(lastErr)
	return zero, lastErr
}

// StatWithRetry performs os.Stat, retrying stale file handle errors.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open, retrying stale file handle errors.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadDirWithRetry performs os.ReadDir, retrying stale file handle errors.
func ReadDirWithRetry(path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry("readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}
