package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for document sync, normalization, evidence
// uploads, intake and RAG queries. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	SyncRuns         *prometheus.CounterVec
	SyncDuration     prometheus.Histogram
	DocumentsFetched prometheus.Counter
	AuditsNormalized *prometheus.CounterVec
	UploadsTotal     *prometheus.CounterVec
	UploadBytes      prometheus.Counter
	IntakeMessages   *prometheus.CounterVec
	RAGQueries       *prometheus.CounterVec
	RAGLatency       prometheus.Histogram
	UpstreamRetries  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_sync_runs_total",
			Help: "Document store sync runs by result state",
		}, []string{"state"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditx_sync_duration_seconds",
			Help:    "Duration of a full document store sync",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DocumentsFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "auditx_documents_fetched_total",
			Help: "Audit documents read from the document store",
		}),
		AuditsNormalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_audits_normalized_total",
			Help: "Audit documents normalized by outcome and computed status",
		}, []string{"outcome", "status"}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_evidence_uploads_total",
			Help: "Evidence uploads by final status",
		}, []string{"status"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "auditx_evidence_upload_bytes_total",
			Help: "Bytes of evidence uploaded successfully",
		}),
		IntakeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_intake_messages_total",
			Help: "Evidence intake messages by processing status",
		}, []string{"status"}),
		RAGQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_rag_queries_total",
			Help: "RAG queries by outcome",
		}, []string{"outcome"}),
		RAGLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditx_rag_query_duration_seconds",
			Help:    "End-to-end RAG query latency including retrieval and generation",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		UpstreamRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_upstream_retries_total",
			Help: "Retried upstream requests by service and status code",
		}, []string{"service", "code"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditx_http_requests_total",
			Help: "HTTP API requests by route and status code",
		}, []string{"route", "code"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditx_http_request_duration_seconds",
			Help:    "HTTP API request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ObserveSync(state string, d time.Duration, fetched int) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(state).Inc()
	m.SyncDuration.Observe(d.Seconds())
	m.DocumentsFetched.Add(float64(fetched))
}

func (m *Metrics) IncNormalized(outcome, status string) {
	if m != nil {
		m.AuditsNormalized.WithLabelValues(outcome, status).Inc()
	}
}

func (m *Metrics) ObserveUpload(status string, size int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
	if status == "success" && size > 0 {
		m.UploadBytes.Add(float64(size))
	}
}

func (m *Metrics) IncIntake(status string) {
	if m != nil {
		m.IntakeMessages.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveRAG(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RAGQueries.WithLabelValues(outcome).Inc()
	m.RAGLatency.Observe(d.Seconds())
}

func (m *Metrics) IncRetry(service, code string) {
	if m != nil {
		m.UpstreamRetries.WithLabelValues(service, code).Inc()
	}
}

func (m *Metrics) ObserveHTTP(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}
