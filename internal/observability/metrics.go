package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects core counters for diff base resolution.
type Metrics struct {
	resolutions *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	enrichments *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diffbase_resolutions_total",
		Help: "Total resolved diff bases by operation and type.",
	}, []string{"operation", "type"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diffbase_remote_fetches_total",
		Help: "Total remote fetch attempts by outcome.",
	}, []string{"outcome"})
	enrichments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diffbase_pr_enrichments_total",
		Help: "Total pull request enrichment attempts by outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diffbase_failures_total",
		Help: "Total failed resolutions by operation.",
	}, []string{"operation"})

	resolutions = registerCounterVec(registerer, resolutions)
	fetches = registerCounterVec(registerer, fetches)
	enrichments = registerCounterVec(registerer, enrichments)
	failures = registerCounterVec(registerer, failures)

	return &Metrics{
		resolutions: resolutions,
		fetches:     fetches,
		enrichments: enrichments,
		failures:    failures,
	}
}

func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile writes the gathered metrics in text format for the node
// exporter textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, gatherer)
}

func (m *Metrics) IncResolution(operation, kind string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) IncFetch(outcome string) {
	if m == nil || m.fetches == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncEnrichment(outcome string) {
	if m == nil || m.enrichments == nil {
		return
	}
	m.enrichments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFailure(operation string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(operation).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
