package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"thumbcache/internal/codec"
	"thumbcache/internal/memory"
	"thumbcache/internal/resample"
	"thumbcache/internal/store"
	"thumbcache/internal/workers"
)

// Decoder turns a file into pixels. *codec.Dispatcher is the production
// implementation.
type Decoder interface {
	Decode(ctx context.Context, path string) (*codec.Image, error)
}

// Config tunes a Pipeline.
type Config struct {
	// Workers is the number of concurrent decoders (0 = one per CPU, or
	// THUMBCACHE_WORKERS).
	Workers int
	// EventBuffer is the capacity of a run's event channel.
	EventBuffer int
	// MaxEdge is the longest edge of a stored preview.
	MaxEdge int
	// Quality is the JPEG quality of a stored preview.
	Quality int
	// HashChunk is how much of each end of a file the partial hash reads.
	HashChunk int64
	// OpenTimeout bounds opening a directory's store.
	OpenTimeout time.Duration
	// DetectRenames reuses the preview of an unchanged file that was
	// renamed, found through its partial hash.
	DetectRenames bool
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Workers:       workers.ForCPU(0),
		EventBuffer:   64,
		MaxEdge:       resample.DefaultMaxEdge,
		Quality:       resample.DefaultQuality,
		HashChunk:     store.DefaultHashChunk,
		OpenTimeout:   3 * time.Second,
		DetectRenames: true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.MaxEdge <= 0 {
		c.MaxEdge = def.MaxEdge
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = def.Quality
	}
	if c.HashChunk <= 0 {
		c.HashChunk = def.HashChunk
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	return c
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMemoryMonitor makes workers wait while memory usage is critical.
func WithMemoryMonitor(m *memory.Monitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithStoreOptions overrides how directory stores are opened. The pipeline
// always opens stores for writing.
func WithStoreOptions(opts store.Options) Option {
	return func(p *Pipeline) { p.storeOpts = opts }
}

// Pipeline produces previews for directory listings. One Pipeline serves
// any number of concurrent runs.
type Pipeline struct {
	cfg       Config
	dec       Decoder
	monitor   *memory.Monitor
	storeOpts store.Options

	nextID atomic.Uint64
	mu     sync.Mutex
	active map[uint64]*Run
}

// New creates a Pipeline.
func New(cfg Config, dec Decoder, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:    cfg,
		dec:    dec,
		active: make(map[uint64]*Run),
	}
	p.storeOpts.OpenTimeout = cfg.OpenTimeout
	for _, opt := range opts {
		opt(p)
	}
	p.storeOpts.ReadOnly = false
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Start begins producing previews for entries of dir and returns at once.
// The caller must drain Run.Events until it is closed.
func (p *Pipeline) Start(ctx context.Context, dir string, entries []StatEntry) *Run {
	r := newRun(ctx, p, p.nextID.Add(1), dir, entries)

	p.mu.Lock()
	p.active[r.id] = r
	p.mu.Unlock()

	go r.coordinate()
	return r
}

// ActiveRuns returns the number of runs that have not finished.
func (p *Pipeline) ActiveRuns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// CancelAll cancels every active run.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	runs := make([]*Run, 0, len(p.active))
	for _, r := range p.active {
		runs = append(runs, r)
	}
	p.mu.Unlock()

	for _, r := range runs {
		r.Cancel()
	}
}

func (p *Pipeline) finished(r *Run) {
	p.mu.Lock()
	delete(p.active, r.id)
	p.mu.Unlock()
}
