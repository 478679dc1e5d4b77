package manager

import (
	"time"

	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/types"
)

// MetricsCollector periodically exports store gauges and raft state
type MetricsCollector struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager:  mgr,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectContentMetrics()
	c.collectRevisionMetrics()
	c.collectPageMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectContentMetrics() {
	contents, err := c.manager.store.ListContents()
	if err != nil {
		return
	}

	counts := make(map[string]map[types.ContentState]int)
	for _, content := range contents {
		if counts[content.Type] == nil {
			counts[content.Type] = make(map[types.ContentState]int)
		}
		counts[content.Type][content.State]++
	}

	metrics.ContentsTotal.Reset()
	for typ, states := range counts {
		for state, count := range states {
			metrics.ContentsTotal.WithLabelValues(typ, string(state)).Set(float64(count))
		}
	}
}

func (c *MetricsCollector) collectRevisionMetrics() {
	revisions, err := c.manager.store.ListRevisions()
	if err != nil {
		return
	}

	counts := make(map[types.RevisionState]int)
	for _, r := range revisions {
		counts[r.State]++
	}

	metrics.RevisionsTotal.Reset()
	for state, count := range counts {
		metrics.RevisionsTotal.WithLabelValues(state.String()).Set(float64(count))
	}
}

func pageStateLabel(p *types.Page) string {
	switch {
	case p.IsDeleted():
		return "deleted"
	case p.IsOnline() && p.State.Has(types.PageHidden):
		return "hidden"
	case p.IsOnline():
		return "online"
	default:
		return "offline"
	}
}

func (c *MetricsCollector) collectPageMetrics() {
	pages, err := c.manager.store.ListPages()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, p := range pages {
		counts[pageStateLabel(p)]++
	}

	metrics.PagesTotal.Reset()
	for state, count := range counts {
		metrics.PagesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats != nil {
		if lastIndex, ok := stats["last_log_index"].(uint64); ok {
			metrics.RaftLogIndex.Set(float64(lastIndex))
		}
		if appliedIndex, ok := stats["applied_index"].(uint64); ok {
			metrics.RaftAppliedIndex.Set(float64(appliedIndex))
		}
		if peers, ok := stats["peers"].(uint64); ok {
			metrics.RaftPeers.Set(float64(peers))
		}
	}
}
