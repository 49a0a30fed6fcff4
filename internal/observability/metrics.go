package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	gradingOutcomesTotal  *prometheus.CounterVec
	gradingLatencySeconds *prometheus.HistogramVec
	gradingAttemptsTotal  *prometheus.CounterVec
	batchSubmissions      *prometheus.HistogramVec
	ocrJobsTotal          *prometheus.CounterVec
	ocrLatencySeconds     prometheus.Histogram
	uploadRequestsTotal   *prometheus.CounterVec
	uploadRejectedTotal   *prometheus.CounterVec
	uploadLatencySeconds  prometheus.Histogram
	gradingEventsTotal    *prometheus.CounterVec
	eventClientsActive    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors of the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aisensei_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_grading_outcomes_total",
			Help: "Grading attempts by outcome.",
		}, []string{"outcome"})

		gradingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aisensei_grading_latency_seconds",
			Help:    "End to end latency of a grading attempt.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"})

		gradingAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_grading_route_attempts_total",
			Help: "Model route attempts made while grading, by route and result.",
		}, []string{"route", "result"})

		batchSubmissions = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aisensei_batch_submissions",
			Help:    "Submissions per batch grading run, by stage.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		}, []string{"stage"})

		ocrJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_ocr_jobs_total",
			Help: "OCR jobs by outcome.",
		}, []string{"outcome"})

		ocrLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aisensei_ocr_latency_seconds",
			Help:    "Latency of OCR extraction calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_upload_requests_total",
			Help: "Submission file uploads by type.",
		}, []string{"type"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_upload_rejected_total",
			Help: "Rejected submission file uploads by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aisensei_upload_latency_seconds",
			Help:    "Latency of storing an uploaded submission file.",
			Buckets: prometheus.DefBuckets,
		})

		gradingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aisensei_grading_events_total",
			Help: "Grading events delivered to live subscribers, by status.",
		}, []string{"status"})

		eventClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aisensei_grading_event_clients_active",
			Help: "Open websocket connections streaming grading events.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			gradingOutcomesTotal, gradingLatencySeconds, gradingAttemptsTotal, batchSubmissions,
			ocrJobsTotal, ocrLatencySeconds,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
			gradingEventsTotal, eventClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingOutcomes counts grading attempts by outcome.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// GradingLatency observes grading attempt durations.
func GradingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingLatencySeconds
}

// GradingRouteAttempts counts model route attempts.
func GradingRouteAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingAttemptsTotal
}

// BatchSubmissions observes batch sizes per stage.
func BatchSubmissions() *prometheus.HistogramVec {
	RegisterMetrics()
	return batchSubmissions
}

// OCRJobs counts OCR jobs by outcome.
func OCRJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return ocrJobsTotal
}

// OCRLatency observes OCR call durations.
func OCRLatency() prometheus.Histogram {
	RegisterMetrics()
	return ocrLatencySeconds
}

// UploadRequests counts accepted uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes storage write durations.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// GradingEvents counts delivered grading events.
func GradingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsTotal
}

// EventClientsActive tracks open event streams.
func EventClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return eventClientsActive
}
