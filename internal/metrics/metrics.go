// Package metrics exposes Prometheus metrics for the HTTP file store.
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

// Metrics holds the collectors registered on a private registry, so
// several servers can coexist in one process (as they do in tests).
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadedBytes   prometheus.Counter
	uploadSize      prometheus.Histogram
	filesStored     prometheus.Counter
	filesRemoved    prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_drop_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "files_drop_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		uploadedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "files_drop_uploaded_bytes_total",
			Help: "Total bytes written into the store by uploads",
		}),
		uploadSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "files_drop_upload_size_bytes",
			Help: "Distribution of uploaded file sizes",
			Buckets: []float64{
				4096,      // 4KB
				65536,     // 64KB
				1048576,   // 1MB
				10485760,  // 10MB
				104857600, // 100MB
			},
		}),
		filesStored: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "files_drop_files_stored_total",
			Help: "Total number of files stored",
		}),
		filesRemoved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "files_drop_files_removed_total",
			Help: "Total number of files removed",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveUpload records a file stored by an upload.
func (m *Metrics) ObserveUpload(size int64) {
	m.filesStored.Inc()
	m.uploadedBytes.Add(float64(size))
	m.uploadSize.Observe(float64(size))
}

// ObserveRemove records a removed file.
func (m *Metrics) ObserveRemove() {
	m.filesRemoved.Inc()
}
