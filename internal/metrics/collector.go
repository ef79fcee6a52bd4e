package metrics

import (
	"time"

	"thumbcache/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the point-in-time gauges sampled by the Collector.
type Stats struct {
	ActiveRuns       int
	OpenStores       int
	ViewCacheEntries int
}

// Collector periodically samples a StatsProvider into gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	PipelineRunsActive.Set(float64(stats.ActiveRuns))
	StoresOpen.Set(float64(stats.OpenStores))
	ViewCacheEntries.Set(float64(stats.ViewCacheEntries))

	logging.Debug("Metrics collected: runs=%d, stores=%d, viewcache=%d",
		stats.ActiveRuns, stats.OpenStores, stats.ViewCacheEntries)
}
