package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	if got := testutil.CollectAndCount(PipelineItemsTotal); got < 6 {
		t.Errorf("PipelineItemsTotal series = %d, want >= 6", got)
	}
	if got := testutil.CollectAndCount(CodecDecodeErrors); got < 21 {
		t.Errorf("CodecDecodeErrors series = %d, want >= 21", got)
	}
	if got := testutil.CollectAndCount(ResolverResolutionsTotal); got < 5 {
		t.Errorf("ResolverResolutionsTotal series = %d, want >= 5", got)
	}
}

func TestFilesystemObserver(t *testing.T) {
	o := NewFilesystemObserver()

	before := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("test-vol", "stat"))
	o.ObserveOperation("test-vol", "stat", 0.001, errors.New("boom"))
	o.ObserveOperation("test-vol", "stat", 0.001, nil)
	after := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("test-vol", "stat"))

	if after-before != 1 {
		t.Errorf("FilesystemOperationErrors delta = %v, want 1", after-before)
	}

	o.ObserveStaleError("open", "test-vol")
	if got := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("open", "test-vol")); got < 1 {
		t.Errorf("FilesystemStaleErrors = %v, want >= 1", got)
	}
}

type fakeProvider struct{ stats Stats }

func (f fakeProvider) GetStats() Stats { return f.stats }

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(fakeProvider{stats: Stats{ActiveRuns: 2, OpenStores: 3, ViewCacheEntries: 7}}, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(PipelineRunsActive); got != 2 {
		t.Errorf("PipelineRunsActive = %v, want 2", got)
	}
	if got := testutil.ToFloat64(StoresOpen); got != 3 {
		t.Errorf("StoresOpen = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ViewCacheEntries); got != 7 {
		t.Errorf("ViewCacheEntries = %v, want 7", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeProvider{}, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}
