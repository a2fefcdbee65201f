package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estatedesk"

// Metrics holds the valuation engine collectors. A nil *Metrics is valid and
// records nothing, which keeps tests and optional wiring simple.
type Metrics struct {
	registry *prometheus.Registry

	dvfPages           prometheus.Counter
	dvfErrors          *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	searchRadius       prometheus.Histogram
	valuationFallbacks *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dvfPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dvf_fetch_pages_total",
			Help:      "Pages fetched from the DVF transaction registry.",
		}),
		dvfErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dvf_fetch_errors_total",
			Help:      "DVF fetch failures by kind.",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparables_cache_total",
			Help:      "Comparables cache lookups by result.",
		}, []string{"result"}),
		searchRadius: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "comparables_search_radius_meters",
			Help:      "Final radius reached by the adaptive comparables search.",
			Buckets:   []float64{1000, 2000, 3000, 5000, 7000, 10000},
		}),
		valuationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_fallbacks_total",
			Help:      "Valuations that fell back to a statistical value, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.dvfPages,
		m.dvfErrors,
		m.cacheLookups,
		m.searchRadius,
		m.valuationFallbacks,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DVFPageFetched() {
	if m == nil {
		return
	}
	m.dvfPages.Inc()
}

func (m *Metrics) DVFFetchFailed(kind string) {
	if m == nil {
		return
	}
	m.dvfErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) SearchCompleted(finalRadius int) {
	if m == nil {
		return
	}
	m.searchRadius.Observe(float64(finalRadius))
}

func (m *Metrics) ValuationFallback(reason string) {
	if m == nil {
		return
	}
	m.valuationFallbacks.WithLabelValues(reason).Inc()
}
