// Package metrics exposes Prometheus collectors for the poll and delivery pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	queueDepth   *prometheus.GaugeVec
	enqueued     *prometheus.CounterVec
	evicted      *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	listings     *prometheus.CounterVec
	pollDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salebot_queue_entries",
			Help: "Listings waiting in outbound queues.",
		}, []string{"kind"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_queue_enqueued_total",
			Help: "Listings added to outbound queues.",
		}, []string{"kind"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_queue_evicted_total",
			Help: "Oldest listings dropped because a queue reached capacity.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_deliveries_total",
			Help: "Batch delivery attempts by outcome.",
		}, []string{"kind", "result"}), // success | failure
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_delivery_dropped_total",
			Help: "Listings discarded after exhausting delivery attempts.",
		}, []string{"kind"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_fetches_total",
			Help: "Storefront search requests by outcome.",
		}, []string{"result"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salebot_listings_total",
			Help: "Listings seen at each pipeline stage.",
		}, []string{"stage"}), // fetched | matched | fresh
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salebot_poll_duration_seconds",
			Help:    "Duration of one poll cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.queueDepth,
		m.enqueued,
		m.evicted,
		m.deliveries,
		m.dropped,
		m.fetches,
		m.listings,
		m.pollDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// QueueChanged records a change of queue length for a target kind.
func (m *Metrics) QueueChanged(kind string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.queueDepth.WithLabelValues(kind).Add(float64(delta))
}

// Enqueued counts listings added to a queue.
func (m *Metrics) Enqueued(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.enqueued.WithLabelValues(kind).Add(float64(n))
}

// Evicted counts listings trimmed by the capacity limit.
func (m *Metrics) Evicted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evicted.WithLabelValues(kind).Add(float64(n))
}

// Delivery counts one batch delivery attempt.
func (m *Metrics) Delivery(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}

// Dropped counts listings discarded after too many attempts.
func (m *Metrics) Dropped(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(kind).Add(float64(n))
}

// Fetch counts one storefront request.
func (m *Metrics) Fetch(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.fetches.WithLabelValues(result).Inc()
}

// Listings counts listings reaching a pipeline stage.
func (m *Metrics) Listings(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.listings.WithLabelValues(stage).Add(float64(n))
}

// PollFinished records how long a poll cycle took.
func (m *Metrics) PollFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
}
