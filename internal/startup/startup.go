package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"thumbcache/internal/browser"
	"thumbcache/internal/codec"
	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/pipeline"
	"thumbcache/internal/resample"
	"thumbcache/internal/resolver"
	"thumbcache/internal/store"
	"thumbcache/internal/viewcache"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "THUMBCACHE"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Root string

	// Pipeline
	Workers       int
	EventBuffer   int
	MaxEdge       int
	Quality       int
	HashChunk     int64
	DetectRenames bool

	// Store
	OpenTimeout time.Duration
	OpTimeout   time.Duration

	// Codec
	KeepAlpha   bool
	VideoOffset time.Duration
	ShrinkHint  int
	FFmpegPath  string

	// Resolver
	Threshold  float64
	VolumesDir string

	ViewCacheSize int

	// Server
	ListenAddr      string
	MetricsEnabled  bool
	LogHTTPRequests bool

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// SetDefaults registers the default of every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")

	v.SetDefault("workers", 0)
	v.SetDefault("event_buffer", 64)
	v.SetDefault("preview.max_edge", resample.DefaultMaxEdge)
	v.SetDefault("preview.quality", resample.DefaultQuality)
	v.SetDefault("hash_chunk", store.DefaultHashChunk)
	v.SetDefault("detect_renames", true)

	v.SetDefault("store.open_timeout", "3s")
	v.SetDefault("store.op_timeout", "5s")

	v.SetDefault("codec.keep_alpha", false)
	v.SetDefault("codec.video_offset", "1s")
	v.SetDefault("codec.shrink_hint", 1024)
	v.SetDefault("codec.ffmpeg", "ffmpeg")

	v.SetDefault("resolver.threshold", resolver.DefaultThreshold)
	v.SetDefault("resolver.volumes_dir", resolver.DefaultVolumesDir)

	v.SetDefault("view_cache_size", viewcache.DefaultSize)

	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("serve.log_requests", false)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 64)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

// NewViper returns a viper instance reading THUMBCACHE_* environment
// variables and, when configFile is set, that file. A .env file in the
// working directory or next to configFile is loaded first; it never
// overrides variables already set.
func NewViper(configFile string) (*viper.Viper, error) {
	envFiles := []string{".env"}
	if configFile != "" {
		envFiles = append(envFiles, filepath.Join(filepath.Dir(configFile), ".env"))
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			logging.Debug("Loaded environment from %s", f)
		}
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// LoadConfig reads and validates the configuration held by v. Invalid values
// are logged and replaced by their defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("no configuration source")
	}

	cfg := &Config{
		Root:            v.GetString("root"),
		Workers:         v.GetInt("workers"),
		EventBuffer:     v.GetInt("event_buffer"),
		MaxEdge:         v.GetInt("preview.max_edge"),
		Quality:         v.GetInt("preview.quality"),
		HashChunk:       v.GetInt64("hash_chunk"),
		DetectRenames:   v.GetBool("detect_renames"),
		KeepAlpha:       v.GetBool("codec.keep_alpha"),
		ShrinkHint:      v.GetInt("codec.shrink_hint"),
		FFmpegPath:      v.GetString("codec.ffmpeg"),
		Threshold:       v.GetFloat64("resolver.threshold"),
		VolumesDir:      v.GetString("resolver.volumes_dir"),
		ViewCacheSize:   v.GetInt("view_cache_size"),
		ListenAddr:      v.GetString("serve.addr"),
		MetricsEnabled:  v.GetBool("metrics.enabled"),
		LogHTTPRequests: v.GetBool("serve.log_requests"),
		LogLevel:        v.GetString("log.level"),
		LogFile:         v.GetString("log.file"),
		LogMaxSizeMB:    v.GetInt("log.max_size"),
		LogMaxBackups:   v.GetInt("log.max_backups"),
		LogMaxAgeDays:   v.GetInt("log.max_age"),
		LogCompress:     v.GetBool("log.compress"),
	}

	cfg.OpenTimeout = duration(v, "store.open_timeout", 3*time.Second)
	cfg.OpTimeout = duration(v, "store.op_timeout", 5*time.Second)
	cfg.VideoOffset = duration(v, "codec.video_offset", time.Second)

	if cfg.Workers < 0 {
		logging.Warn("  Invalid workers %d, using automatic sizing", cfg.Workers)
		cfg.Workers = 0
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		logging.Warn("  Invalid preview quality %d, using default: %d", cfg.Quality, resample.DefaultQuality)
		cfg.Quality = resample.DefaultQuality
	}
	if cfg.MaxEdge < 1 {
		logging.Warn("  Invalid preview max edge %d, using default: %d", cfg.MaxEdge, resample.DefaultMaxEdge)
		cfg.MaxEdge = resample.DefaultMaxEdge
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		logging.Warn("  Invalid resolver threshold %v, using default: %v", cfg.Threshold, resolver.DefaultThreshold)
		cfg.Threshold = resolver.DefaultThreshold
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logging.SetLevel(level)
	} else {
		logging.Warn("  Invalid log level %q, keeping %s", cfg.LogLevel, logging.GetLevel())
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory path: %w", err)
	}
	cfg.Root = root

	return cfg, nil
}

func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logging.Warn("  Invalid %s %q, using default: %v", key, raw, def)
		return def
	}
	return d
}

// LogConfig prints the banner, system information and cfg.
func LogConfig(cfg *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  ROOT:                %s", cfg.Root)
	if cfg.Workers == 0 {
		logging.Info("  WORKERS:             auto")
	} else {
		logging.Info("  WORKERS:             %d", cfg.Workers)
	}
	logging.Info("  PREVIEW:             %dpx, quality %d", cfg.MaxEdge, cfg.Quality)
	logging.Info("  DETECT_RENAMES:      %v", cfg.DetectRenames)
	logging.Info("  STORE_OPEN_TIMEOUT:  %v", cfg.OpenTimeout)
	logging.Info("  STORE_OP_TIMEOUT:    %v", cfg.OpTimeout)
	logging.Info("  VIDEO_OFFSET:        %v", cfg.VideoOffset)
	logging.Info("  FFMPEG:              %s", cfg.FFmpegPath)
	logging.Info("  RESOLVER_THRESHOLD:  %.2f", cfg.Threshold)
	logging.Info("  VOLUMES_DIR:         %s", cfg.VolumesDir)
	logging.Info("  VIEW_CACHE_SIZE:     %d", cfg.ViewCacheSize)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	if cfg.LogFile != "" {
		logging.Info("  LOG_FILE:            %s", cfg.LogFile)
	}

	if err := ensureDirectory(cfg.Root); err != nil {
		logging.Warn("  Root directory issue: %v", err)
	}
	logging.Info("")
}

// LogFileConfig returns the rotating log file settings, or ok=false when
// file logging is off.
func (c *Config) LogFileConfig() (logging.FileConfig, bool) {
	if c.LogFile == "" {
		return logging.FileConfig{}, false
	}
	return logging.FileConfig{
		Path:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   c.LogCompress,
	}, true
}

// PipelineConfig returns the pipeline settings.
func (c *Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.EventBuffer > 0 {
		cfg.EventBuffer = c.EventBuffer
	}
	cfg.MaxEdge = c.MaxEdge
	cfg.Quality = c.Quality
	if c.HashChunk > 0 {
		cfg.HashChunk = c.HashChunk
	}
	cfg.OpenTimeout = c.OpenTimeout
	cfg.DetectRenames = c.DetectRenames
	return cfg
}

// BrowserOptions returns the options of the browser service.
func (c *Config) BrowserOptions(monitor *memory.Monitor) browser.Options {
	return browser.Options{
		Pipeline: c.PipelineConfig(),
		Codec: codec.Options{
			KeepAlpha:   c.KeepAlpha,
			VideoOffset: c.VideoOffset,
			ShrinkHint:  c.ShrinkHint,
			FFmpegPath:  c.FFmpegPath,
		},
		Resolver: resolver.Options{
			Threshold:  c.Threshold,
			VolumesDir: c.VolumesDir,
		},
		Volumes: resolver.MountTable{VolumesDir: c.VolumesDir},
		Store: store.Options{
			OpenTimeout: c.OpenTimeout,
			OpTimeout:   c.OpTimeout,
		},
		Monitor:       monitor,
		ViewCacheSize: c.ViewCacheSize,
	}
}

// LogCodecInit logs which decoders are available.
func LogCodecInit(ffmpegPath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CODEC INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if codec.IsVipsAvailable() {
		logging.Info("  [OK] libvips is available")
	} else {
		logging.Warn("  libvips unavailable, layered and extended formats need ffmpeg")
	}

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Video previews will be unavailable")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	switch result.Source {
	case memory.SourceGoMemLimit:
		logging.Info("  GOMEMLIMIT:  %d bytes (from environment)", result.GoMemLimit)
	case memory.SourceEnv, memory.SourceCgroup:
		logging.Info("  GOMEMLIMIT:  %d bytes (%.0f%% of %d from %s)",
			result.GoMemLimit, result.Ratio*100, result.ContainerLimit, result.Source)
	default:
		logging.Info("  No memory limit configured, decode backpressure disabled")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Addr            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Listening on:    %s", config.Addr)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         %s/metrics", config.Addr)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
  _   _                     _                     _
 | |_| |__  _   _ _ __ ___ | |__   ___ __ _  ___| |__   ___
 | __| '_ \| | | | '_ ' _ \| '_ \ / __/ _' |/ __| '_ \ / _ \
 | |_| | | | |_| | | | | | | |_) | (_| (_| | (__| | | |  __/
  \__|_| |_|\__,_|_| |_| |_|_.__/ \___\__,_|\___|_| |_|\___|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			logging.Debug("  Root contains %d entries (top level)", len(entries))
		}
	}
	return nil
}

func checkFFmpeg(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if first, _, _ := strings.Cut(string(output), "\n"); first != "" {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(first))
	}
	return nil
}
