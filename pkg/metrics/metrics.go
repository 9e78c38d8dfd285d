// Package metrics defines the Prometheus collectors used by the indexer and
// searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "retrieval"

var (
	httpBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	searchBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	DocsIndexedTotal   prometheus.Counter
	MalformedDocsTotal prometheus.Counter
	IndexBuildsTotal   *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	IndexDocuments     prometheus.Gauge
	IndexTerms         prometheus.Gauge
	IndexPostings      prometheus.Gauge

	reg prometheus.Registerer
}

// New creates all collectors and registers them with reg. Passing nil uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(counterOpts("http", "requests_total",
			"HTTP requests by method, path and status."), []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(histogramOpts("http", "request_duration_seconds",
			"HTTP request latency in seconds.", httpBuckets), []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(gaugeOpts("http", "requests_in_flight",
			"HTTP requests currently being served.")),

		SearchQueriesTotal: prometheus.NewCounterVec(counterOpts("search", "queries_total",
			"Search queries by result type (hit, zero_result, error)."), []string{"result_type"}),
		SearchLatency: prometheus.NewHistogramVec(histogramOpts("search", "latency_seconds",
			"End-to-end query latency by cache status (hit, miss, disabled).", searchBuckets), []string{"cache_status"}),
		SearchResultsCount: prometheus.NewHistogram(histogramOpts("search", "results_count",
			"Documents returned per query.", []float64{0, 1, 5, 10, 25, 50, 100})),
		CacheHitsTotal: prometheus.NewCounter(counterOpts("cache", "hits_total",
			"Query cache hits.")),
		CacheMissesTotal: prometheus.NewCounter(counterOpts("cache", "misses_total",
			"Query cache misses.")),

		DocsIndexedTotal: prometheus.NewCounter(counterOpts("index", "documents_indexed_total",
			"Documents normalized and indexed by rebuilds.")),
		MalformedDocsTotal: prometheus.NewCounter(counterOpts("index", "malformed_documents_total",
			"Corpus records skipped as malformed.")),
		IndexBuildsTotal: prometheus.NewCounterVec(counterOpts("index", "builds_total",
			"Index builds by outcome (empty, reused, rebuilt, error)."), []string{"status"}),
		IndexBuildDuration: prometheus.NewHistogram(histogramOpts("index", "build_duration_seconds",
			"Time spent building or reusing the index.", prometheus.ExponentialBuckets(0.01, 4, 8))),
		IndexDocuments: prometheus.NewGauge(gaugeOpts("index", "documents",
			"Documents in the active index.")),
		IndexTerms: prometheus.NewGauge(gaugeOpts("index", "terms",
			"Distinct terms in the active index.")),
		IndexPostings: prometheus.NewGauge(gaugeOpts("index", "postings",
			"Postings in the active index.")),

		reg: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.SearchQueriesTotal, m.SearchLatency, m.SearchResultsCount,
		m.CacheHitsTotal, m.CacheMissesTotal,
		m.DocsIndexedTotal, m.MalformedDocsTotal, m.IndexBuildsTotal, m.IndexBuildDuration,
		m.IndexDocuments, m.IndexTerms, m.IndexPostings,
	)
	return m
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(subsystem, name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(gaugeOpts(subsystem, name, help), fn))
}

func counterOpts(subsystem, name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}
}

func gaugeOpts(subsystem, name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}
}

func histogramOpts(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
