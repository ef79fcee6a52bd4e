package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"thumbcache/internal/codec"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/metrics"
	"thumbcache/internal/pipeline"
	"thumbcache/internal/resolver"
	"thumbcache/internal/store"
	"thumbcache/internal/viewcache"
)

// defaultReaderStores is how many read-only stores Preview keeps open.
const defaultReaderStores = 16

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("browser service closed")

// Options configures a Service. Zero values take defaults.
type Options struct {
	Pipeline pipeline.Config
	Codec    codec.Options
	Resolver resolver.Options
	// Volumes lists mount points for path resolution. Defaults to the
	// system mount table.
	Volumes resolver.VolumeSource
	// Decoder replaces the codec dispatcher built from Codec.
	Decoder       pipeline.Decoder
	Store         store.Options
	Monitor       *memory.Monitor
	ViewCacheSize int
	ReaderStores  int
}

// Service is the entry point used by a directory browser. It owns one
// pipeline, a resolver, the view cache and the read-only stores behind
// Preview.
type Service struct {
	pipe     *pipeline.Pipeline
	resolver *resolver.Resolver
	views    *viewcache.Cache
	readers  *lru.Cache[string, *store.Store]
	storeOpt store.Options
	retry    filesystem.RetryConfig

	mu     sync.Mutex
	runs   map[string]*pipeline.Run
	closed bool
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Pipeline == (pipeline.Config{}) {
		opts.Pipeline = pipeline.DefaultConfig()
	}
	if opts.Volumes == nil {
		opts.Volumes = resolver.MountTable{VolumesDir: opts.Resolver.VolumesDir}
	}
	dec := opts.Decoder
	if dec == nil {
		copts := opts.Codec
		if copts.ShrinkHint == 0 {
			copts.ShrinkHint = codec.DefaultOptions().ShrinkHint
		}
		dec = codec.New(copts)
	}
	if opts.ReaderStores <= 0 {
		opts.ReaderStores = defaultReaderStores
	}

	views, err := viewcache.New(opts.ViewCacheSize)
	if err != nil {
		return nil, err
	}

	readers, err := lru.NewWithEvict(opts.ReaderStores, func(dir string, st *store.Store) {
		if err := st.Close(); err != nil {
			logging.Warn("failed to close read-only store for %s: %v", dir, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store cache: %w", err)
	}

	if opts.Store.OpenTimeout == 0 {
		opts.Store.OpenTimeout = opts.Pipeline.OpenTimeout
	}
	pipeOpts := []pipeline.Option{pipeline.WithStoreOptions(opts.Store)}
	if opts.Monitor != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMemoryMonitor(opts.Monitor))
	}

	retry := opts.Store.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = filesystem.DefaultRetryConfig()
	}

	return &Service{
		pipe:     pipeline.New(opts.Pipeline, dec, pipeOpts...),
		resolver: resolver.New(opts.Volumes, opts.Resolver),
		views:    views,
		readers:  readers,
		storeOpt: opts.Store,
		retry:    retry,
		runs:     make(map[string]*pipeline.Run),
	}, nil
}

// StartPipeline starts producing previews for dir. A nil listing scans the
// directory. When dir no longer exists it is resolved first and the
// resolved directory is scanned. A run already active on the same
// directory is cancelled.
func (s *Service) StartPipeline(ctx context.Context, dir string, listing []pipeline.StatEntry) (*pipeline.Run, error) {
	dir = filepath.Clean(dir)

	if !isDir(dir, s.retry) {
		res, err := s.resolver.Resolve(dir)
		if err != nil {
			return nil, fmt.Errorf("start pipeline: %w", err)
		}
		logging.Info("Directory %s moved to %s", dir, res.Path)
		dir, listing = res.Path, nil
	}

	if listing == nil {
		entries, err := pipeline.ScanDirectory(dir)
		if err != nil {
			return nil, fmt.Errorf("start pipeline: %w", err)
		}
		listing = entries
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if prev, ok := s.runs[dir]; ok {
		logging.Debug("Cancelling run %d on %s for a newer one", prev.ID(), dir)
		prev.Cancel()
	}

	r := s.pipe.Start(ctx, dir, listing)
	s.runs[dir] = r
	go s.forget(dir, r)
	return r, nil
}

func (s *Service) forget(dir string, r *pipeline.Run) {
	r.Wait()
	s.mu.Lock()
	if s.runs[dir] == r {
		delete(s.runs, dir)
	}
	s.mu.Unlock()
}

// CancelPipeline cancels r. It reports false when r already finished.
func (s *Service) CancelPipeline(r *pipeline.Run) bool {
	if r == nil {
		return false
	}
	s.mu.Lock()
	active := s.runs[r.Dir()] == r
	s.mu.Unlock()

	r.Cancel()
	return active
}

// ResolvePath returns an existing equivalent of path.
func (s *Service) ResolvePath(path string) (string, error) {
	res, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// SetRating stores the rating of a file without touching its preview.
func (s *Service) SetRating(ctx context.Context, dir, name string, rating int) error {
	return s.withStore(ctx, dir, func(st *store.Store) error {
		return st.UpdateRating(ctx, store.Key(name), rating)
	})
}

// SetTag stores the colour tag of a file without touching its preview.
func (s *Service) SetTag(ctx context.Context, dir, name string, tag int) error {
	return s.withStore(ctx, dir, func(st *store.Store) error {
		return st.UpdateTag(ctx, store.Key(name), tag)
	})
}

// PurgeDirectory cancels any run on dir, waits for it to finish and
// empties the store. The run's events must still be drained by its
// consumer; ctx bounds the wait.
func (s *Service) PurgeDirectory(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)

	s.mu.Lock()
	active := s.runs[dir]
	s.mu.Unlock()

	if active != nil {
		active.Cancel()
		select {
		case <-active.Done():
		case <-ctx.Done():
			return fmt.Errorf("purge %s: waiting for run %d: %w", dir, active.ID(), ctx.Err())
		}
	}

	s.readers.Remove(dir)
	evicted := s.views.EvictDir(dir, inDir)
	logging.Debug("Evicted %d cached previews for %s", evicted, dir)

	return s.withStore(ctx, dir, func(st *store.Store) error {
		return st.Purge(ctx)
	})
}

// Preview returns the stored preview of dir/name if it is current. It only
// reads, so it never waits for a run on the same directory.
func (s *Service) Preview(ctx context.Context, dir, name string) ([]byte, bool, error) {
	dir = filepath.Clean(dir)
	path := filepath.Join(dir, name)

	info, err := filesystem.StatWithRetry(path, s.retry)
	if err != nil {
		return nil, false, fmt.Errorf("preview %s: %w", path, err)
	}
	modified := info.ModTime().UnixNano()

	if data, ok := s.views.Get(path, modified); ok {
		return data, true, nil
	}

	st, err := s.reader(ctx, dir)
	if errors.Is(err, store.ErrNoStore) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rec, found, err := st.Lookup(ctx, store.Key(name))
	if err != nil || !found {
		return nil, false, err
	}
	snap := store.Snapshot{Size: info.Size(), Modified: modified}
	if store.Decide(snap, rec) != store.Hit {
		return nil, false, nil
	}

	s.views.Add(path, modified, rec.Preview)
	return rec.Preview, true, nil
}

func (s *Service) reader(ctx context.Context, dir string) (*store.Store, error) {
	if st, ok := s.readers.Get(dir); ok {
		return st, nil
	}

	opts := s.storeOpt
	opts.ReadOnly = true
	st, err := store.Open(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	if prev, ok, _ := s.readers.PeekOrAdd(dir, st); ok {
		if err := st.Close(); err != nil {
			logging.Warn("failed to close read-only store for %s: %v", dir, err)
		}
		return prev, nil
	}
	return st, nil
}

func (s *Service) withStore(ctx context.Context, dir string, fn func(*store.Store) error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	st, err := store.Open(ctx, filepath.Clean(dir), s.storeOpt)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn("failed to close store for %s: %v", dir, err)
		}
	}()
	return fn(st)
}

// ViewCache returns the cache behind Preview.
func (s *Service) ViewCache() *viewcache.Cache {
	return s.views
}

// GetStats implements metrics.StatsProvider.
func (s *Service) GetStats() metrics.Stats {
	runs := s.pipe.ActiveRuns()
	return metrics.Stats{
		ActiveRuns:       runs,
		OpenStores:       s.readers.Len() + runs,
		ViewCacheEntries: s.views.Len(),
	}
}

// Close cancels every run and releases cached stores. Runs already
// started still deliver their Done event.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pipe.CancelAll()
	s.readers.Purge()
	s.views.Purge()
	return nil
}

func isDir(path string, retry filesystem.RetryConfig) bool {
	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("Cannot stat %s: %v", path, err)
		}
		return false
	}
	return info.IsDir()
}

func inDir(path, dir string) bool {
	return filepath.Dir(path) == dir
}
