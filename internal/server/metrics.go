package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one API server.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal     *prometheus.CounterVec
	uploadBytes      prometheus.Counter
	downloadsTotal   prometheus.Counter
	downloadBytes    prometheus.Counter
	dedupHits        prometheus.Counter
	dedupBytesSaved  prometheus.Counter
	quotaRejections  prometheus.Counter
	blobsRemoved     *prometheus.CounterVec
	downloadsDropped prometheus.Counter
}

// NewMetrics registers all collectors on registry. A nil registry gets a
// fresh one with the Go and process collectors attached.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updrive_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "updrive_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"route"}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updrive_uploads_total",
			Help: "Upload attempts by result",
		}, []string{"result"}),

		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_upload_bytes_total",
			Help: "Bytes accepted through uploads",
		}),

		downloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_downloads_total",
			Help: "Completed downloads",
		}),

		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_download_bytes_total",
			Help: "Bytes streamed through downloads",
		}),

		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_dedup_hits_total",
			Help: "Uploads resolved to an existing blob",
		}),

		dedupBytesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_dedup_bytes_saved_total",
			Help: "Physical bytes not kept because of deduplication",
		}),

		quotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_quota_rejections_total",
			Help: "Uploads rejected by the quota ledger",
		}),

		blobsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updrive_blobs_removed_total",
			Help: "Blob removals by reason",
		}, []string{"reason"}),

		downloadsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "updrive_download_count_dropped_total",
			Help: "Download counter increments dropped because the queue was full",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed HTTP request.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordUpload records an upload outcome. Bytes count only for accepted uploads.
func (m *Metrics) RecordUpload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(result).Inc()
	if result == uploadResultAccepted && bytes > 0 {
		m.uploadBytes.Add(float64(bytes))
	}
	if result == uploadResultQuota {
		m.quotaRejections.Inc()
	}
}

// RecordDedup records an upload that reused an existing blob.
func (m *Metrics) RecordDedup(bytes int64) {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
	if bytes > 0 {
		m.dedupBytesSaved.Add(float64(bytes))
	}
}

// RecordDownload records a streamed download.
func (m *Metrics) RecordDownload(bytes int64) {
	if m == nil {
		return
	}
	m.downloadsTotal.Inc()
	if bytes > 0 {
		m.downloadBytes.Add(float64(bytes))
	}
}

// RecordBlobRemoved records a blob removal.
func (m *Metrics) RecordBlobRemoved(reason string) {
	if m == nil {
		return
	}
	m.blobsRemoved.WithLabelValues(reason).Inc()
}

// RecordDownloadDropped records a download counter increment that was dropped.
func (m *Metrics) RecordDownloadDropped() {
	if m == nil {
		return
	}
	m.downloadsDropped.Inc()
}
