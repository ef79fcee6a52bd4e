package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// FileName is the hidden store file kept inside every browsed directory.
const FileName = ".thumbcache.db"

const (
	defaultOpenTimeout = 3 * time.Second
	defaultOpTimeout   = 5 * time.Second
)

var (
	// ErrNotWritable is returned by Open when the directory is missing,
	// is not a directory, or cannot hold the store file.
	ErrNotWritable = errors.New("directory not writable")
	// ErrUnavailable wraps every storage engine failure, including open
	// timeouts on slow mounts.
	ErrUnavailable = errors.New("thumbnail store unavailable")
	// ErrNoStore is returned by a read-only Open when the directory has
	// never been cached.
	ErrNoStore = errors.New("no thumbnail store in directory")
	// ErrReadOnly is returned by writes on a store opened read-only.
	ErrReadOnly = errors.New("thumbnail store opened read-only")
	// ErrInvalidRating is returned for ratings outside 0-5.
	ErrInvalidRating = errors.New("rating must be between 0 and 5")
	// ErrInvalidTag is returned for tags outside 0-9.
	ErrInvalidTag = errors.New("tag must be between 0 and 9")
)

// Options configures Open.
type Options struct {
	// OpenTimeout bounds the whole open, including the first stat of the
	// directory. Defaults to 3s.
	OpenTimeout time.Duration
	// OpTimeout bounds each query. Defaults to 5s.
	OpTimeout time.Duration
	// ReadOnly opens an existing store without creating or migrating it.
	ReadOnly bool
	// Retry configures the directory stat on network mounts.
	Retry filesystem.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = defaultOpenTimeout
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
	if o.Retry.MaxRetries == 0 && o.Retry.InitialBackoff == 0 {
		o.Retry = filesystem.DefaultRetryConfig()
	}
	return o
}

// Store is the thumbnail cache of a single directory. Reads run
// concurrently; writes are serialized and transactional.
type Store struct {
	db       *sql.DB
	dir      string
	path     string
	readOnly bool
	opts     Options

	// wmu serializes writers so no two transactions race on one store.
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

type openResult struct {
	s   *Store
	err error
}

// Open opens or creates the store inside dir. A directory that cannot be
// written fails with ErrNotWritable; engine failures and timeouts fail with
// ErrUnavailable.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	start := time.Now()

	ch := make(chan openResult, 1)
	go func() {
		s, err := openFunc(dir, opts)
		ch <- openResult{s: s, err: err}
	}()

	timer := time.NewTimer(opts.OpenTimeout)
	defer timer.Stop()

	var err error
	select {
	case r := <-ch:
		recordOp("open", start, r.err)
		return r.s, r.err
	case <-timer.C:
		err = fmt.Errorf("open store in %s: %w: timed out after %v", dir, ErrUnavailable, opts.OpenTimeout)
	case <-ctx.Done():
		err = fmt.Errorf("open store in %s: %w: %w", dir, ErrUnavailable, ctx.Err())
	}

	go closeLate(ch)
	metrics.StoreUnavailableTotal.WithLabelValues("timeout").Inc()
	recordOp("open", start, err)
	logging.Warn("Thumbnail store open abandoned for %s: %v", dir, err)
	return nil, err
}

// openFunc is replaced in tests to stall an open.
var openFunc = open

// closeLate releases a store whose open finished after the caller gave up.
func closeLate(ch <-chan openResult) {
	r := <-ch
	if r.s != nil {
		if err := r.s.Close(); err != nil {
			logging.Warn("failed to close abandoned store: %v", err)
		}
	}
}

func open(dir string, opts Options) (*Store, error) {
	info, err := filesystem.StatWithRetry(dir, opts.Retry)
	if err != nil {
		metrics.StoreUnavailableTotal.WithLabelValues("not_writable").Inc()
		return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrNotWritable, err)
	}
	if !info.IsDir() {
		metrics.StoreUnavailableTotal.WithLabelValues("not_writable").Inc()
		return nil, fmt.Errorf("open store in %s: %w: not a directory", dir, ErrNotWritable)
	}

	path := filepath.Join(dir, FileName)

	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("open store in %s: %w", dir, ErrNoStore)
			}
			return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrUnavailable, err)
		}
	} else if err := probeWritable(path); err != nil {
		metrics.StoreUnavailableTotal.WithLabelValues("not_writable").Inc()
		return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrNotWritable, err)
	}

	db, err := sql.Open("sqlite3", dsn(path, opts.ReadOnly))
	if err != nil {
		metrics.StoreUnavailableTotal.WithLabelValues("engine").Inc()
		return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrUnavailable, err)
	}

	s := &Store{
		db:       db,
		dir:      dir,
		path:     path,
		readOnly: opts.ReadOnly,
		opts:     opts,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.OpenTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		s.closeAfterFailure()
		metrics.StoreUnavailableTotal.WithLabelValues("engine").Inc()
		return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrUnavailable, err)
	}

	// One writer at a time is enforced by wmu; extra connections let
	// readers proceed while a write transaction is open.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if opts.ReadOnly {
		err = s.checkSchema(ctx)
	} else {
		err = s.initialize(ctx)
	}
	if err != nil {
		s.closeAfterFailure()
		metrics.StoreUnavailableTotal.WithLabelValues("engine").Inc()
		return nil, fmt.Errorf("open store in %s: %w: %w", dir, ErrUnavailable, err)
	}

	metrics.StoresOpen.Inc()
	logging.Debug("Thumbnail store opened: %s (read-only: %v)", path, opts.ReadOnly)
	return s, nil
}

// probeWritable creates the store file if needed and confirms it can be
// opened for writing.
func probeWritable(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func dsn(path string, readOnly bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	if readOnly {
		q.Set("mode", "ro")
	} else {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String()
}

func (s *Store) closeAfterFailure() {
	if err := s.db.Close(); err != nil {
		logging.Error("failed to close store after open failure: %v", err)
	}
}

// Dir returns the directory the store belongs to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether writes are rejected.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Close releases the database handle. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		metrics.StoresOpen.Dec()
	})
	return s.closeErr
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

// write runs fn in a transaction while holding the writer lock.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.readOnly {
		return ErrReadOnly
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// recordOp records store operation metrics.
func recordOp(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
