package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nbcollab_cell_extraction_seconds",
		Help:    "Time spent extracting symbols from a single cell.",
		Buckets: prometheus.DefBuckets,
	})

	ExtractionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_cell_extraction_failures_total",
		Help: "Total number of cells whose source could not be parsed.",
	})

	GraphNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nbcollab_graph_nodes",
		Help: "Number of nodes in the most recently built dependency graph.",
	}, []string{"kind"})

	GraphEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nbcollab_graph_edges",
		Help: "Number of edges in the most recently built dependency graph.",
	}, []string{"kind"})

	SectionsPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_sections_pruned_total",
		Help: "Total number of vestigial section nodes removed after graph construction.",
	})

	EventsMappedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_events_mapped_total",
		Help: "Total number of execution events mapped onto a section.",
	})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbcollab_events_dropped_total",
		Help: "Total number of execution events dropped during mapping.",
	}, []string{"reason"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbcollab_analysis_seconds",
		Help:    "Time spent on high-level analysis tasks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	CollaborationScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nbcollab_collaboration_score",
		Help: "Latest best collaboration score per notebook and group.",
	}, []string{"notebook", "group"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_watcher_events_total",
		Help: "Total number of notebook file changes received by the watcher.",
	})

	RescoreThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_rescore_throttled_total",
		Help: "Total number of watch-triggered re-analyses skipped by the rate limiter.",
	})

	WriteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nbcollab_write_queue_depth",
		Help: "Number of history writes waiting in the in-memory queue.",
	})

	WriteQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_write_queue_dropped_total",
		Help: "Total number of history writes rejected because the queue was full.",
	})

	WriteQueueProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_write_queue_processed_total",
		Help: "Total number of queued history writes applied.",
	})

	WriteQueueApplyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbcollab_write_queue_apply_errors_total",
		Help: "Total number of queued history writes that failed.",
	})
)
