package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event pipeline metrics
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idnsync_events_processed_total",
			Help: "Total number of processed events by tenant and resulting status",
		},
		[]string{"tenant", "status"},
	)

	EventsPendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idnsync_events_pending",
			Help: "Events fetched for the current tenant round",
		},
		[]string{"tenant"},
	)

	// Directory metrics
	DirectoryOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idnsync_directory_operations_total",
			Help: "Total number of directory operations by kind",
		},
		[]string{"operation"},
	)

	DirectoryRebindsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idnsync_directory_rebinds_total",
			Help: "Total number of directory reconnect attempts",
		},
	)

	// Round metrics
	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idnsync_rounds_total",
			Help: "Total number of completed scheduler rounds",
		},
	)

	RoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idnsync_round_duration_seconds",
			Help:    "Duration of one full scheduler round in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TenantRoundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idnsync_tenant_round_duration_seconds",
			Help:    "Duration of one tenant pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// Fan-out metrics
	FanoutQueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idnsync_fanout_queued_total",
			Help: "Total number of queued cross-tenant items by kind",
		},
		[]string{"kind"},
	)

	FanoutAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idnsync_fanout_applied_total",
			Help: "Total number of drained cross-tenant items by kind",
		},
		[]string{"kind"},
	)

	FanoutQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idnsync_fanout_queue_depth",
			Help: "Items currently waiting in the cross-tenant queue",
		},
	)

	// Initial load metrics
	PersonsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idnsync_persons_loaded_total",
			Help: "Total number of source rows upserted during initial load",
		},
	)

	PersonsRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idnsync_persons_removed_total",
			Help: "Total number of leftover directory entries removed during initial load",
		},
	)

	// Read-only tenant metrics
	ReadOnlyWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idnsync_readonly_watermark_seconds",
			Help: "Unix timestamp of the read-only tenant watermark",
		},
		[]string{"tenant"},
	)

	// Liveness metrics
	LivenessAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idnsync_liveness_age_seconds",
			Help: "Seconds since the liveness file was last touched",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(EventsPendingGauge)
	prometheus.MustRegister(DirectoryOpsTotal)
	prometheus.MustRegister(DirectoryRebindsTotal)
	prometheus.MustRegister(RoundsTotal)
	prometheus.MustRegister(RoundDuration)
	prometheus.MustRegister(TenantRoundDuration)
	prometheus.MustRegister(FanoutQueuedTotal)
	prometheus.MustRegister(FanoutAppliedTotal)
	prometheus.MustRegister(FanoutQueueDepth)
	prometheus.MustRegister(PersonsLoadedTotal)
	prometheus.MustRegister(PersonsRemovedTotal)
	prometheus.MustRegister(ReadOnlyWatermark)
	prometheus.MustRegister(LivenessAge)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
