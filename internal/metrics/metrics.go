package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Expansions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgx_expansions_total",
		Help: "Expansion attempts, labelled by outcome (merged, failed, stale, skipped).",
	}, []string{"status"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgx_provider_requests_total",
		Help: "Provider calls, labelled by operation and status.",
	}, []string{"op", "status"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kgx_provider_duration_ms",
		Help:    "Provider call latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"op"})

	StaleDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kgx_stale_responses_dropped_total",
		Help: "Fetch completions discarded because their node left the visible set.",
	})

	VisibleNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgx_visible_nodes",
		Help: "Nodes currently in the visible set.",
	})

	VisibleEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kgx_visible_edges",
		Help: "Edges currently displayed, labelled by kind (declared, inferred).",
	}, []string{"kind"})

	LayoutTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kgx_layout_ticks_total",
		Help: "Force simulation ticks executed.",
	})

	LayoutAlpha = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgx_layout_alpha",
		Help: "Current simulation energy.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgx_loop_queue_utilization_ratio",
		Help: "Current session loop queue utilization (0-1).",
	})

	RequestsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kgx_requests_rejected_total",
		Help: "Requests rejected because the session loop queue was full.",
	})
)

// ObserveGraph records the visible set sizes.
func ObserveGraph(nodes, declared, inferred int) {
	VisibleNodes.Set(float64(nodes))
	VisibleEdges.WithLabelValues("declared").Set(float64(declared))
	VisibleEdges.WithLabelValues("inferred").Set(float64(inferred))
}
