package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Requesting the same name twice returns the same collector.
type PrometheusFactory struct {
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory registers metrics with reg. A nil reg uses the
// default registerer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		factory:    promauto.With(reg),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = metricName(name) + "_total"
	if c, ok := f.counters[name]; ok {
		return c
	}
	c := f.factory.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: "Total " + strings.ReplaceAll(name, "_", " ") + ".",
	})
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = metricName(name)
	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := f.factory.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Distribution of " + strings.ReplaceAll(name, "_", " ") + ".",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	f.histograms[name] = h
	return h
}

// metricName maps dotted names to Prometheus names.
func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
