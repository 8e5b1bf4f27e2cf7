// Package metrics exposes Prometheus instrumentation for the
// attribution pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the pipeline collectors. One instance lives in the
// dependency container and is shared by the services.
type Registry struct {
	TouchpointsIngested prometheus.Counter
	ConversionsIngested prometheus.Counter
	ConversionsRejected prometheus.Counter
	ResultsComputed     *prometheus.CounterVec
	DeadLettered        prometheus.Counter
	QueueDepth          prometheus.Gauge
	ProcessingDuration  prometheus.Histogram

	registry *prometheus.Registry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		TouchpointsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "convertlens_touchpoints_ingested_total",
			Help: "Touchpoints accepted into storage.",
		}),
		ConversionsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "convertlens_conversions_ingested_total",
			Help: "Conversion events accepted and queued for attribution.",
		}),
		ConversionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "convertlens_conversions_rejected_total",
			Help: "Conversion events rejected because the queue was full.",
		}),
		ResultsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convertlens_results_computed_total",
			Help: "Attribution results persisted, by model.",
		}, []string{"model"}),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "convertlens_dead_letters_total",
			Help: "Conversions parked after exhausting retries.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "convertlens_queue_depth",
			Help: "Conversions currently waiting in the processing queue.",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "convertlens_processing_duration_seconds",
			Help:    "Time to attribute one conversion across all configured models.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

// Handler returns the scrape endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
