package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride is the environment variable that pins the decode pool size.
const EnvOverride = "THUMBCACHE_WORKERS"

// Count returns the number of workers for a task with the given CPU
// multiplier, capped at limit (0 means uncapped). GOMAXPROCS is used rather
// than NumCPU so container CPU limits are honoured.
//
// A positive integer in THUMBCACHE_WORKERS replaces the computed value but is
// still capped at limit.
func Count(multiplier float64, limit int) int {
	if n, ok := override(); ok {
		return capAt(n, limit)
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	return capAt(n, limit)
}

// ForCPU returns worker count for CPU-bound tasks such as decode and
// resample (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

func override() (int, bool) {
	raw := os.Getenv(EnvOverride)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
