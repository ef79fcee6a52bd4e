package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"thumbcache/internal/logging"
)

// DefaultMemoryRatio is the share of the memory limit given to the Go heap.
// The rest stays free for ffmpeg, libvips and SQLite page caches.
const DefaultMemoryRatio = 0.85

// Source names where a memory limit was found.
type Source string

const (
	SourceNone       Source = "none"
	SourceGoMemLimit Source = "GOMEMLIMIT"
	SourceEnv        Source = "MEMORY_LIMIT"
	SourceCgroup     Source = "cgroup"
)

// ConfigResult reports what ConfigureFromEnv did.
type ConfigResult struct {
	Configured bool
	Source     Source
	// ContainerLimit is the limit the heap budget was derived from, in bytes.
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// cgroupLimitFiles are read in order when MEMORY_LIMIT is unset. cgroup v2
// first, then v1.
var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// ConfigureFromEnv sets GOMEMLIMIT to MEMORY_RATIO of the container memory
// limit. An explicit GOMEMLIMIT wins. The limit comes from MEMORY_LIMIT
// (bytes or a size such as 512Mi or 2G) or else from the cgroup.
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: SourceGoMemLimit}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	limit, source := containerLimit()
	if limit <= 0 {
		logging.Debug("No container memory limit found, GOMEMLIMIT left unset")
		return ConfigResult{Source: SourceNone}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"))
	goMemLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s from %s)",
		formatBytes(goMemLimit), ratio*100, formatBytes(limit), source)

	return ConfigResult{
		Configured:     true,
		Source:         source,
		ContainerLimit: limit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func containerLimit() (int64, Source) {
	if env := os.Getenv("MEMORY_LIMIT"); env != "" {
		limit, err := parseSize(env)
		if err != nil {
			logging.Warn("Ignoring MEMORY_LIMIT: %v", err)
			return 0, SourceNone
		}
		return limit, SourceEnv
	}

	for _, path := range cgroupLimitFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		raw := strings.TrimSpace(string(data))
		if raw == "max" {
			return 0, SourceNone
		}
		limit, err := strconv.ParseInt(raw, 10, 64)
		// cgroup v1 reports an unlimited group as a page-aligned MaxInt64.
		if err != nil || limit <= 0 || limit >= math.MaxInt64/2 {
			return 0, SourceNone
		}
		return limit, SourceCgroup
	}
	return 0, SourceNone
}

func parseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		logging.Warn("Invalid MEMORY_RATIO %q, using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}

var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
	{"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
}

// parseSize accepts plain bytes or Kubernetes quantities such as 512Mi.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	for _, u := range sizeSuffixes {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSuffix(s, u.suffix), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > math.MaxInt64/mult {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return n * mult, nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
