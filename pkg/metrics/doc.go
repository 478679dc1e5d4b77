/*
Package metrics exposes Prometheus metrics and health endpoints for a
strata node.

Metrics are package-level collectors registered in init and served by
Handler on the health address under /metrics.

# Metrics

Gauges refreshed by the manager's collector:

	strata_contents_total{type,state}
	strata_revisions_total{state}
	strata_pages_total{state}
	strata_raft_is_leader
	strata_raft_peers_total
	strata_raft_log_index
	strata_raft_applied_index

Editing:

	strata_commits_total
	strata_conflicts_total
	strata_editor_operation_duration_seconds{operation}
	strata_flush_records

Serving:

	strata_api_requests_total{method,status}
	strata_api_request_duration_seconds{method}
	strata_site_requests_total{code}
	strata_site_cache_total{result}
	strata_render_duration_seconds{source}

Background work:

	strata_reconciliation_duration_seconds
	strata_reconciliation_cycles_total
	strata_pages_scheduled_total{action}
	strata_revisions_purged_total
	strata_theme_reloads_total{theme}

# Health

HealthChecker keeps the last state reported by each component. The node
is ready once every critical component (raft, storage and api by
default) is healthy:

	metrics.RegisterComponent("storage", true, "bolt opened")
	metrics.UpdateComponent("raft", false, "no leader")

	mux.Handle("/components", metrics.HealthHandler())
	mux.Handle("/live", metrics.LivenessHandler())

The API health server answers /health and /ready itself from raft and
storage state and mounts these two next to them.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.EditorOperationDuration, "commit")
*/
package metrics
