package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Пути обработки запроса на выпуск.
const (
	PathQueued   = "queued"
	PathFallback = "fallback"
	PathExisting = "existing"
)

// Исходы одной попытки выпуска.
const (
	OutcomeIssued       = "issued"
	OutcomeFailed       = "failed"
	OutcomeInfraError   = "infra_error"
	OutcomeSkipped      = "skipped"
	OutcomeLeaseBusy    = "lease_busy"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidInput = "invalid_input"
)

var (
	// IssuanceRequests — запросы на выпуск/повтор по пути обработки.
	IssuanceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_issuance_requests_total",
		Help: "Issuance requests by dispatch path",
	}, []string{"path"})

	// IssuanceAttempts — попытки выпуска по исходу.
	IssuanceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_issuance_attempts_total",
		Help: "Issuance attempts by outcome",
	}, []string{"outcome"})

	// ProviderCallDuration — длительность вызова провайдера.
	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiscal_provider_call_duration_seconds",
		Help:    "Duration of fiscal provider calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	// EnqueueFailures — неудачные постановки в очередь (ушли в inline fallback).
	EnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_enqueue_failures_total",
		Help: "Failed enqueue attempts that fell back to inline processing",
	})

	// QueueJobs — последний снимок счётчиков очереди.
	QueueJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fiscal_queue_jobs",
		Help: "Queue job counts by state from the latest health check",
	}, []string{"state"})

	// ReconciledDocuments — документы, переотправленные reconciler'ом.
	ReconciledDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_reconciled_documents_total",
		Help: "Stale PROCESSING documents re-dispatched by the reconciler",
	})

	// HTTPRequests — HTTP запросы API по коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_api_http_requests_total",
		Help: "HTTP requests handled by the API",
	}, []string{"method", "code"})
)
