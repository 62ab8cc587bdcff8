// Package metrics declares the Prometheus metrics exported by the viewer
// pipeline. All metrics are registered at package init via promauto and
// served from the /metrics endpoint in main.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_viewer_cache_entries",
			Help: "Number of decoded images currently held in the cache",
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_cache_hits_total",
			Help: "Cache lookups that found a decoded image",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_cache_misses_total",
			Help: "Cache lookups that found nothing",
		},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_cache_evictions_total",
			Help: "Entries evicted by keep-window trims and cache clears",
		},
	)

	CacheReserveFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_cache_reserve_failures_total",
			Help: "Reservation attempts that failed because the entry was held",
		},
	)
)

// Loader metrics
var (
	DecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_decodes_total",
			Help: "Background decodes by outcome",
		},
		[]string{"status"}, // "success", "error", "cancelled"
	)

	DecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_viewer_decode_duration_seconds",
			Help:    "Time spent decoding a file into an image",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ResultsDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_results_discarded_total",
			Help: "Asynchronous completions dropped by relevance filtering",
		},
		[]string{"source"}, // "loader", "scaler", "thumbnailer"
	)
)

// Scaler metrics
var (
	ScaleOperationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_scale_operations_total",
			Help: "Display rescale operations performed",
		},
	)

	ScaleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_viewer_scale_duration_seconds",
			Help:    "Time spent rescaling a decoded image for display",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// Thumbnailer metrics
var (
	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_thumbnails_total",
			Help: "Thumbnails produced, by source",
		},
		[]string{"source"}, // "store", "decode", "video"
	)

	ThumbnailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_viewer_thumbnail_duration_seconds",
			Help:    "Time spent producing one thumbnail",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	ThumbnailStoreErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_thumbnail_store_errors_total",
			Help: "Read/write failures against the thumbnail store",
		},
	)
)

// Directory metrics
var (
	DirectoryFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_viewer_directory_files",
			Help: "Supported media files in the current directory",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_watcher_events_total",
			Help: "Filesystem watcher events by type",
		},
		[]string{"type"}, // "create", "remove", "rename", "write", "chmod", "unknown"
	)

	WatcherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_watcher_errors_total",
			Help: "Errors reported by the filesystem watcher",
		},
	)
)

// Filesystem retry metrics, recorded by the filesystem package.
var (
	FsRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_fs_retries_total",
			Help: "Filesystem operations retried after a stale NFS handle",
		},
		[]string{"op"}, // "stat", "open", "readdir"
	)

	FsStaleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_viewer_fs_stale_errors_total",
			Help: "Stale NFS file handle errors observed",
		},
		[]string{"op"},
	)
)

// Memory metrics, recorded by the memory monitor.
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_viewer_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_viewer_memory_paused",
			Help: "1 when decode work is paused due to memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_viewer_memory_gc_pauses_total",
			Help: "Forced garbage collections triggered at the critical water mark",
		},
	)
)
