package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pass metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_runs_total",
			Help: "Total number of full scan passes",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_last_run_timestamp",
			Help: "Timestamp of the last completed scan pass",
		},
	)

	ScanLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_last_run_duration_seconds",
			Help: "Duration of the last scan pass in seconds",
		},
	)

	ScanFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_files_processed_total",
			Help: "Total number of files processed by scan passes",
		},
	)

	ScanFilesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_files_failed_total",
			Help: "Total number of files that failed processing",
		},
	)

	ScanInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_in_flight",
			Help: "Number of files currently being processed",
		},
	)
)

// Store metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_store_queries_total",
			Help: "Total number of store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Codec and preview metrics
var (
	CodecDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_codec_decodes_total",
			Help: "Total number of codec decode calls",
		},
		[]string{"kind", "status"},
	)

	PreviewsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_previews_generated_total",
			Help: "Total number of preview renditions generated",
		},
	)

	PreviewBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_preview_bytes_total",
			Help: "Total encoded preview bytes generated",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_events_total",
			Help: "Total number of filesystem events handled",
		},
		[]string{"type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)
)
