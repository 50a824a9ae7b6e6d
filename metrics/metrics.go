// Package metrics exports kernel cache activity as Prometheus metrics.
//
// A Collector is created per cache and registered on a caller-supplied
// prometheus.Registerer:
//
//	m := metrics.NewCollector("kernels")
//	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
//		return err
//	}
//	cache := jit.New(backend, jit.WithMetrics(m))
//
// Counters are labeled by kernel name.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the cache metrics. The zero value is not usable; a nil
// *Collector records nothing.
type Collector struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	compilations    *prometheus.CounterVec
	compileFailures *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	compileSeconds  *prometheus.HistogramVec
	entries         prometheus.Gauge
}

// NewCollector creates the metrics under the given namespace.
func NewCollector(namespace string) *Collector {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"kernel"})
	}
	return &Collector{
		hits:            counter("hits_total", "Calls served by a cached specialization."),
		misses:          counter("misses_total", "Calls that found no cached specialization."),
		compilations:    counter("compilations_total", "Specializations compiled."),
		compileFailures: counter("compile_failures_total", "Specializations the compiler rejected."),
		fallbacks:       counter("fallbacks_total", "Calls that fell back to the interpreter."),
		compileSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "compile_seconds",
			Help:      "Time spent compiling one specialization.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kernel"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Specializations held by the cache.",
		}),
	}
}

// Register registers every metric on r.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, m := range c.collectors() {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.hits, c.misses, c.compilations, c.compileFailures, c.fallbacks,
		c.compileSeconds, c.entries,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

func (c *Collector) Hit(kernel string) {
	if c != nil {
		c.hits.WithLabelValues(kernel).Inc()
	}
}

func (c *Collector) Miss(kernel string) {
	if c != nil {
		c.misses.WithLabelValues(kernel).Inc()
	}
}

// Compiled records a successful compilation and its duration.
func (c *Collector) Compiled(kernel string, d time.Duration) {
	if c != nil {
		c.compilations.WithLabelValues(kernel).Inc()
		c.compileSeconds.WithLabelValues(kernel).Observe(d.Seconds())
	}
}

func (c *Collector) CompileFailed(kernel string) {
	if c != nil {
		c.compileFailures.WithLabelValues(kernel).Inc()
	}
}

func (c *Collector) Fallback(kernel string) {
	if c != nil {
		c.fallbacks.WithLabelValues(kernel).Inc()
	}
}

// SetEntries records the number of cached specializations.
func (c *Collector) SetEntries(n int) {
	if c != nil {
		c.entries.Set(float64(n))
	}
}
