package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_nodes_added_total",
		Help: "Total number of nodes created through the session, excluding merges.",
	})

	NodesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_nodes_removed_total",
		Help: "Total number of nodes removed from the graph.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scenegraph_graph_nodes",
		Help: "Current number of live nodes in the graph.",
	})

	DanglingReferences = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scenegraph_dangling_targets",
		Help: "Current number of referenced ids that resolve to no live node.",
	})

	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenegraph_merges_total",
		Help: "Total number of document merges, labelled by outcome.",
	}, []string{"status"})

	MergedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_merged_nodes_total",
		Help: "Total number of incoming nodes committed by merges.",
	})

	CollisionsRenamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_collisions_renamed_total",
		Help: "Total number of incoming nodes given a fresh id because theirs was taken.",
	})

	RejectedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenegraph_rejected_nodes_total",
		Help: "Total number of incoming nodes skipped during merge, labelled by reason.",
	}, []string{"reason"})

	CycleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_parent_cycle_rejections_total",
		Help: "Total number of parent assignments refused because they would form a cycle.",
	})

	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scenegraph_merge_duration_ms",
		Help:    "Plan plus commit latency of a merge in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	DecodeQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scenegraph_decode_queue_utilization_ratio",
		Help: "Current document decode queue utilization (0–1).",
	})

	DecodeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenegraph_decode_dropped_total",
		Help: "Total number of documents rejected due to a full decode queue.",
	})
)
