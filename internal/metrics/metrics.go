// Package metrics exposes the Prometheus collectors lazytail's core updates
// as it runs: filter throughput, index refresh activity, marker checks, and
// capture tee throughput. Trimmed from the teacher's sprawling collector set
// down to the counters/gauges/histograms the engine in this repository
// actually drives.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilterRunsTotal counts filter runs started, by execution path.
	FilterRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_filter_runs_total",
			Help: "Total number of filter runs started, by execution path",
		},
		[]string{"path"},
	)

	// FilterOutcomesTotal counts how filter runs ended.
	FilterOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_filter_outcomes_total",
			Help: "Total number of filter runs, by terminal outcome",
		},
		[]string{"outcome"}, // complete|error|cancelled
	)

	// FilterLinesScanned counts lines scanned by completed filter runs.
	FilterLinesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_filter_lines_scanned_total",
			Help: "Total number of lines scanned by filter runs",
		},
		[]string{"path"},
	)

	// FilterMatchesTotal counts matches produced by filter runs.
	FilterMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_filter_matches_total",
			Help: "Total number of matching lines found by filter runs",
		},
		[]string{"path"},
	)

	// FilterRunDuration observes wall-clock time per completed filter run.
	FilterRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazytail_filter_run_duration_seconds",
			Help:    "Filter run duration in seconds, by execution path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// FilterQueueDepth tracks the depth of the SPSC progress channel.
	FilterQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lazytail_filter_queue_depth",
		Help: "Current number of buffered FilterProgress messages awaiting delivery",
	})

	// IndexRefreshesTotal counts columnar index open/refresh calls.
	IndexRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_index_refreshes_total",
			Help: "Total number of columnar index open/refresh operations",
		},
		[]string{"op", "result"}, // op: open|refresh; result: ok|absent|error
	)

	// IndexEntryCount reports the indexed line count of the most recently
	// refreshed index, per log path.
	IndexEntryCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazytail_index_entry_count",
			Help: "Indexed line count of the most recently refreshed columnar index",
		},
		[]string{"log_path"},
	)

	// MarkerChecksTotal counts liveness checks performed by the registry.
	MarkerChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_marker_checks_total",
			Help: "Total number of source marker liveness checks, by result",
		},
		[]string{"result"}, // active|ended
	)

	// MarkersCleanedTotal counts stale markers removed during startup sweeps.
	MarkersCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lazytail_markers_cleaned_total",
		Help: "Total number of stale markers removed during cleanup sweeps",
	})

	// CaptureLinesTotal counts lines teed by the capture command, per source.
	CaptureLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_capture_lines_total",
			Help: "Total number of lines teed by a capture process",
		},
		[]string{"name"},
	)

	// CaptureBytesTotal counts bytes written to the captured log file.
	CaptureBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_capture_bytes_total",
			Help: "Total number of bytes appended to a captured log file",
		},
		[]string{"name"},
	)

	// WatcherEventsTotal counts file-watcher events delivered to the
	// orchestrator, by kind.
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazytail_watcher_events_total",
			Help: "Total number of watcher events delivered, by kind",
		},
		[]string{"kind"}, // modified|error|dropped
	)

	// AggregationGroups reports the group count of each aggregation
	// computation.
	AggregationGroups = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lazytail_aggregation_groups",
		Help:    "Number of distinct groups produced by an aggregation run",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
