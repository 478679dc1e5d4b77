package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Content metrics
	ContentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_contents_total",
			Help: "Total number of contents by type and state",
		},
		[]string{"type", "state"},
	)

	RevisionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_revisions_total",
			Help: "Total number of revisions by state",
		},
		[]string{"state"},
	)

	PagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_pages_total",
			Help: "Total number of pages by state",
		},
		[]string{"state"},
	)

	// Editing metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of committed drafts",
		},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_conflicts_total",
			Help: "Total number of drafts left conflicted by a rebase",
		},
	)

	EditorOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_editor_operation_duration_seconds",
			Help:    "Editor operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	FlushRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_flush_records",
			Help:    "Number of records written per flushed unit of work",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Site metrics
	SiteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_site_requests_total",
			Help: "Total number of public site requests by status code",
		},
		[]string{"code"},
	)

	SiteCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_site_cache_total",
			Help: "Rendered page cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	RenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_render_duration_seconds",
			Help:    "Template rendering duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_reconciliation_duration_seconds",
			Help:    "Time taken by a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	PagesScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_pages_scheduled_total",
			Help: "Pages switched by their publishing window, by action (publish, archive)",
		},
		[]string{"action"},
	)

	RevisionsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_revisions_purged_total",
			Help: "Total number of purged revisions",
		},
	)

	// Theme metrics
	ThemeReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_theme_reloads_total",
			Help: "Theme file changes picked up by the watcher",
		},
		[]string{"theme"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ContentsTotal)
	prometheus.MustRegister(RevisionsTotal)
	prometheus.MustRegister(PagesTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(EditorOperationDuration)
	prometheus.MustRegister(FlushRecords)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SiteRequestsTotal)
	prometheus.MustRegister(SiteCacheTotal)
	prometheus.MustRegister(RenderDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(PagesScheduledTotal)
	prometheus.MustRegister(RevisionsPurgedTotal)
	prometheus.MustRegister(ThemeReloadsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
