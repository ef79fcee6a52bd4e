package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"thumbcache/internal/codec"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
	"thumbcache/internal/resample"
	"thumbcache/internal/store"
)

// job is one entry that needs a preview generated.
type job struct {
	entry    StatEntry
	key      string
	decision store.Decision
	rec      *store.Record
}

// Run is one pass of the pipeline over a directory listing.
type Run struct {
	id      uint64
	dir     string
	p       *Pipeline
	entries []StatEntry

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	start  time.Time

	// st is nil when the run is degraded.
	st *store.Store

	// onDisk holds the keys of every file in dir, scanned on first use.
	onDiskOnce sync.Once
	onDisk     map[string]bool

	statsMu sync.Mutex
	stats   RunStats
}

func newRun(parent context.Context, p *Pipeline, id uint64, dir string, entries []StatEntry) *Run {
	ctx, cancel := context.WithCancel(parent)
	return &Run{
		id:      id,
		dir:     dir,
		p:       p,
		entries: entries,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, p.cfg.EventBuffer),
		done:    make(chan struct{}),
		start:   time.Now(),
	}
}

// ID identifies the run in its events.
func (r *Run) ID() uint64 {
	return r.id
}

// Dir returns the directory being processed.
func (r *Run) Dir() string {
	return r.dir
}

// Events delivers one ItemReady per processed entry in completion order,
// then a single Done, then is closed.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel stops dispatching new work. Decodes already in progress finish
// and are delivered. Safe to call more than once and after completion.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run has finished. Events must be drained
// concurrently or Wait never returns.
func (r *Run) Wait() RunStats {
	<-r.done
	return r.Stats()
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Stats returns the counters so far.
func (r *Run) Stats() RunStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s := r.stats
	if s.Duration == 0 {
		s.Duration = time.Since(r.start)
	}
	return s
}

func (r *Run) count(ev Event) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	r.stats.Total++
	switch ev.Status {
	case StatusHit:
		r.stats.Hits++
	case StatusMiss:
		r.stats.Misses++
	case StatusStale:
		r.stats.Stale++
	case StatusRenamed:
		r.stats.Renamed++
	case StatusPassThrough:
		r.stats.PassThrough++
	case StatusError:
		r.stats.Errors++
	}
	metrics.PipelineItemsTotal.WithLabelValues(ev.Status.String()).Inc()
}

func (r *Run) storeError() {
	r.statsMu.Lock()
	r.stats.StoreErrors++
	r.statsMu.Unlock()
}

// deliver sends an ItemReady event. It blocks until the consumer has room.
func (r *Run) deliver(ev Event) {
	ev.Kind = ItemReady
	ev.RunID = r.id
	r.count(ev)
	r.events <- ev
}

func (r *Run) coordinate() {
	metrics.PipelineRunsActive.Inc()
	defer r.finish()

	logging.Debug("Pipeline run %d started for %s (%d entries)", r.id, r.dir, len(r.entries))

	var work []StatEntry
	var passThrough []StatEntry
	for _, e := range r.entries {
		if e.Family().Previewable() {
			work = append(work, e)
		} else {
			passThrough = append(passThrough, e)
		}
	}

	r.openStore()
	records := r.lookup()

	for _, e := range passThrough {
		if r.ctx.Err() != nil {
			return
		}
		key := e.Key()
		ev := Event{Key: key, Name: e.Name, Path: e.Path, Status: StatusPassThrough, PassThrough: true}
		if rec := records[key]; rec != nil {
			ev.Rating, ev.Tag = rec.Rating, rec.Tag
		}
		r.deliver(ev)
	}

	var jobs []job
	for _, e := range work {
		key := e.Key()
		rec := records[key]
		decision := store.Decide(e.Snapshot(), rec)
		if decision == store.Hit {
			if r.ctx.Err() != nil {
				return
			}
			r.deliver(Event{
				Key:     key,
				Name:    e.Name,
				Path:    e.Path,
				Preview: rec.Preview,
				Rating:  rec.Rating,
				Tag:     rec.Tag,
				Status:  StatusHit,
				Cached:  true,
			})
			continue
		}
		jobs = append(jobs, job{entry: e, key: key, decision: decision, rec: rec})
	}

	// Small files first so the first screen fills quickly.
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].entry.Size != jobs[j].entry.Size {
			return jobs[i].entry.Size < jobs[j].entry.Size
		}
		return jobs[i].entry.Name < jobs[j].entry.Name
	})

	r.dispatch(jobs)
}

// openStore opens the directory's store. Failure switches the run to
// non-persistent mode.
func (r *Run) openStore() {
	st, err := store.Open(r.ctx, r.dir, r.p.storeOpts)
	if err != nil {
		logging.Warn("Thumbnail store unavailable for %s, previews will not be saved: %v", r.dir, err)
		r.degrade()
		return
	}
	r.st = st
}

func (r *Run) degrade() {
	if r.st != nil {
		if err := r.st.Close(); err != nil {
			logging.Warn("failed to close store for %s: %v", r.dir, err)
		}
		r.st = nil
	}
	r.statsMu.Lock()
	r.stats.Degraded = true
	r.statsMu.Unlock()
	metrics.PipelineDegradedRuns.Inc()
}

// lookup fetches every record of the listing in one batch.
func (r *Run) lookup() map[string]*store.Record {
	seen := make(map[string]bool, len(r.entries))
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		k := e.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	if r.st == nil {
		return nil
	}

	records, err := r.st.LookupMany(r.ctx, keys)
	if err != nil {
		logging.Warn("Thumbnail store lookup failed for %s, continuing without it: %v", r.dir, err)
		r.degrade()
		return nil
	}
	return records
}

// dispatch hands jobs to the worker pool one at a time. The jobs channel is
// unbuffered, so a job counts as dispatched only once a worker holds it.
func (r *Run) dispatch(jobs []job) {
	if len(jobs) == 0 {
		return
	}

	n := min(r.p.cfg.Workers, len(jobs))
	metrics.PipelineWorkers.Set(float64(n))

	queue := make(chan job)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r.worker(i, queue)
			return nil
		})
	}

feed:
	for _, j := range jobs {
		select {
		case queue <- j:
		case <-r.ctx.Done():
			break feed
		}
	}
	close(queue)

	_ = g.Wait()
}

func (r *Run) worker(id int, queue <-chan job) {
	logging.Debug("Run %d worker %d started", r.id, id)
	defer logging.Debug("Run %d worker %d finished", r.id, id)

	for j := range queue {
		// A job can still be handed over in the same instant the run is
		// cancelled; it has not started, so it is dropped.
		if r.ctx.Err() != nil {
			continue
		}
		if !r.p.monitor.WaitIfPaused(r.ctx) && r.ctx.Err() != nil {
			continue
		}

		// In-flight work is never aborted by Cancel.
		r.deliver(r.process(context.WithoutCancel(r.ctx), j))
	}
}

// process produces the event for one job. Decode failures are reported on
// the event; storage failures are logged and the preview is still returned.
func (r *Run) process(ctx context.Context, j job) (ev Event) {
	e := j.entry
	ev = Event{Key: j.key, Name: e.Name, Path: e.Path, Status: StatusMiss}
	if j.decision == store.Stale {
		ev.Status = StatusStale
	}
	if j.rec != nil {
		ev.Rating, ev.Tag = j.rec.Rating, j.rec.Tag
	}

	defer func() {
		if p := recover(); p != nil {
			logging.Error("Panic while processing %s: %v", e.Path, p)
			ev.Preview, ev.Cached = nil, false
			ev.Err = fmt.Errorf("processing %s: panic: %v", e.Name, p)
			ev.Status = StatusError
		}
	}()

	var hash string
	if r.st != nil {
		h, err := store.PartialHash(e.Path, r.p.cfg.HashChunk)
		if err != nil {
			logging.Debug("Partial hash failed for %s: %v", e.Path, err)
		} else {
			hash = h
		}
	}

	if j.decision == store.Miss && r.p.cfg.DetectRenames && hash != "" {
		if renamed, ok := r.reuseRenamed(ctx, e, j.key, hash); ok {
			return renamed
		}
	}

	img, err := r.p.dec.Decode(ctx, e.Path)
	if err != nil {
		if codec.IsTransient(err) {
			logging.Warn("Could not read %s: %v", e.Path, err)
		} else {
			logging.Debug("No preview for %s: %v", e.Path, err)
		}
		ev.Err = err
		ev.Status = StatusError
		return ev
	}

	preview, err := resample.Preview(img.Pixels, r.p.cfg.MaxEdge, r.p.cfg.Quality)
	if err != nil {
		ev.Err = err
		ev.Status = StatusError
		return ev
	}
	ev.Preview = preview

	if r.st == nil {
		return ev
	}

	rec := &store.Record{
		Key:         j.key,
		Preview:     preview,
		Size:        e.Size,
		Modified:    e.Modified,
		Resolution:  fmt.Sprintf("%dx%d", img.Width, img.Height),
		PartialHash: hash,
	}
	if err := r.st.Upsert(ctx, rec); err != nil {
		logging.Warn("Failed to save preview of %s: %v", e.Path, err)
		r.storeError()
		return ev
	}
	ev.Cached = true
	return ev
}

// reuseRenamed reuses the preview of another record with the same content.
// When the other file is gone from the directory it was renamed: its rating
// and tag move to the new name and its record is dropped. When it still
// exists the new file is a copy and only the preview is shared.
func (r *Run) reuseRenamed(ctx context.Context, e StatEntry, key, hash string) (Event, bool) {
	old, found, err := r.st.FindByPartialHash(ctx, hash, e.Size)
	if err != nil {
		logging.Debug("Rename lookup failed for %s: %v", e.Path, err)
		return Event{}, false
	}
	if !found || old.Key == key {
		return Event{}, false
	}

	renamed := !r.existsOnDisk(old.Key)
	rec := &store.Record{
		Key:         key,
		Preview:     old.Preview,
		Size:        e.Size,
		Modified:    e.Modified,
		Resolution:  old.Resolution,
		PartialHash: hash,
	}
	if renamed {
		rec.Rating, rec.Tag = old.Rating, old.Tag
	}
	if err := r.st.Upsert(ctx, rec); err != nil {
		logging.Warn("Failed to save reused preview of %s: %v", e.Path, err)
		r.storeError()
		return Event{}, false
	}

	ev := Event{
		Key:     key,
		Name:    e.Name,
		Path:    e.Path,
		Preview: old.Preview,
		Rating:  rec.Rating,
		Tag:     rec.Tag,
		Status:  StatusMiss,
		Cached:  true,
	}
	if !renamed {
		logging.Debug("Reused preview of identical file for %s", filepath.Base(e.Path))
		return ev, true
	}

	if err := r.st.Delete(ctx, old.Key); err != nil && !errors.Is(err, context.Canceled) {
		logging.Debug("Failed to drop record of renamed file: %v", err)
	}
	logging.Debug("Reused preview for renamed file %s", filepath.Base(e.Path))
	ev.Status = StatusRenamed
	return ev, true
}

// existsOnDisk reports whether a file with key is still in the directory.
// The caller's listing may be partial, so the directory itself is scanned.
// A failed scan counts every key as present.
func (r *Run) existsOnDisk(key string) bool {
	r.onDiskOnce.Do(func() {
		entries, err := ScanDirectory(r.dir)
		if err != nil {
			logging.Debug("Cannot rescan %s for renames: %v", r.dir, err)
			return
		}
		r.onDisk = make(map[string]bool, len(entries))
		for _, e := range entries {
			r.onDisk[e.Key()] = true
		}
	})
	return r.onDisk == nil || r.onDisk[key]
}

func (r *Run) finish() {
	cancelled := r.ctx.Err() != nil

	if r.st != nil {
		if err := r.st.Close(); err != nil {
			logging.Warn("failed to close store for %s: %v", r.dir, err)
		}
	}

	r.statsMu.Lock()
	r.stats.Duration = time.Since(r.start)
	stats := r.stats
	r.statsMu.Unlock()

	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome).Inc()
	metrics.PipelineRunDuration.Observe(stats.Duration.Seconds())
	metrics.PipelineRunsActive.Dec()

	logging.Info("Pipeline run %d for %s %s: %d items (%d hits, %d generated, %d errors) in %v",
		r.id, r.dir, outcome, stats.Total, stats.Hits, stats.Misses+stats.Stale+stats.Renamed,
		stats.Errors, stats.Duration)

	r.events <- Event{Kind: Done, RunID: r.id, Cancelled: cancelled, Stats: stats}
	close(r.events)
	r.p.finished(r)
	r.cancel()
	close(r.done)
}
