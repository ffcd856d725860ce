// Package metrics provides Prometheus metrics for the IIIF server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iiif"

// Metrics holds the collectors on a registry of their own, so several
// servers can live in one process (tests do this).
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts answered IIIF requests.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration measures request handling time.
	RequestDuration *prometheus.HistogramVec
	// EngineDuration measures probe and apply calls.
	EngineDuration *prometheus.HistogramVec
	// FetchBytes observes the size of fetched source images.
	FetchBytes prometheus.Histogram
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of IIIF requests",
			},
			[]string{"kind", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of IIIF requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		EngineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_duration_seconds",
				Help:      "Duration of image engine operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		FetchBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_bytes",
				Help:      "Size of fetched source images in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
	}
}

// RecordRequest records an answered request.
func (m *Metrics) RecordRequest(kind string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordEngine records one probe or apply call.
func (m *Metrics) RecordEngine(operation string, d time.Duration) {
	m.EngineDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordFetch records the size of a fetched source image.
func (m *Metrics) RecordFetch(n int) {
	m.FetchBytes.Observe(float64(n))
}

// WatchQueue exposes the engine queue depth as a gauge read at scrape time.
func (m *Metrics) WatchQueue(waiting func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_queue_depth",
			Help:      "Number of engine jobs waiting for a worker",
		},
		func() float64 { return float64(waiting()) },
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
