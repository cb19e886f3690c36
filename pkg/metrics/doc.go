/*
Package metrics provides Prometheus instrumentation for the sync daemon.

This package defines all metrics as package-level variables, registers
them once at init, and exposes them through the standard promhttp
handler on the ops endpoint.

# Metric Groups

Event pipeline:

	idnsync_events_processed_total{tenant,status}  counter
	idnsync_events_pending{tenant}                 gauge

Directory:

	idnsync_directory_operations_total{operation}  counter
	idnsync_directory_rebinds_total                counter

Rounds:

	idnsync_rounds_total                            counter
	idnsync_round_duration_seconds                  histogram
	idnsync_tenant_round_duration_seconds{tenant}   histogram

Cross-tenant fan-out:

	idnsync_fanout_queued_total{kind}    counter (kind: change | rename)
	idnsync_fanout_applied_total{kind}   counter
	idnsync_fanout_queue_depth           gauge

Initial load:

	idnsync_persons_loaded_total    counter
	idnsync_persons_removed_total   counter

Read-only tenants and liveness:

	idnsync_readonly_watermark_seconds{tenant}  gauge
	idnsync_liveness_age_seconds                gauge

# Usage

Counters and histograms are incremented at the call sites:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RoundDuration)

	metrics.EventsProcessedTotal.WithLabelValues(tenant, status).Inc()

The queue depth and liveness age gauges are also sampled by the
Collector every 15 seconds, so they stay fresh while the daemon sleeps:

	collector := metrics.NewCollector(queue, livenessPath)
	collector.Start()
	defer collector.Stop()

# Alerting Hints

A stale liveness file is the primary hang signal:

	idnsync_liveness_age_seconds > 2 * sleeptime

A growing fatal count means events are being dropped permanently:

	increase(idnsync_events_processed_total{status="F"}[1h]) > 0
*/
package metrics
