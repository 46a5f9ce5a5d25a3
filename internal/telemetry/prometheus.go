package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// PrometheusCollector exports engine outcomes and query timings.
type PrometheusCollector struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	engineLatency *prometheus.HistogramVec
	queries       prometheus.Counter
	queryLatency  prometheus.Histogram
	resultsTotal  prometheus.Counter
	unresponsive  *prometheus.CounterVec
}

var _ search.Recorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates a collector with its own registry, which
// also carries the Go runtime and process collectors.
func NewPrometheusCollector() *PrometheusCollector {
	c := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metasearch_engine_outcomes_total",
			Help: "Engine outcomes by status and error kind",
		}, []string{"engine", "status", "kind"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metasearch_engine_duration_seconds",
			Help:    "Time engines took to answer",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"engine"}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metasearch_queries_total",
			Help: "Queries served",
		}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metasearch_query_duration_seconds",
			Help:    "Time from query start to finalized results",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16},
		}),
		resultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metasearch_results_total",
			Help: "Merged results returned to callers",
		}),
		unresponsive: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metasearch_unresponsive_engines_total",
			Help: "Engines reported unresponsive in a query",
		}, []string{"engine"}),
	}

	c.registry.MustRegister(
		c.outcomes, c.engineLatency, c.queries, c.queryLatency, c.resultsTotal, c.unresponsive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordOutcome implements search.Recorder.
func (c *PrometheusCollector) RecordOutcome(o results.Outcome) {
	c.outcomes.WithLabelValues(o.Engine, string(o.Status), string(o.Kind)).Inc()
	if o.Status != results.StatusSkipped {
		c.engineLatency.WithLabelValues(o.Engine).Observe(o.Elapsed.Seconds())
	}
}

// RecordQuery implements search.Recorder.
func (c *PrometheusCollector) RecordQuery(_ *search.Query, rc *results.Container, elapsed time.Duration) {
	c.queries.Inc()
	c.queryLatency.Observe(elapsed.Seconds())
	if rc == nil {
		return
	}
	c.resultsTotal.Add(float64(rc.Len()))
	for _, r := range rc.Unresponsive() {
		c.unresponsive.WithLabelValues(r.Engine).Inc()
	}
}

// Registry returns the registry the metrics are registered on.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
