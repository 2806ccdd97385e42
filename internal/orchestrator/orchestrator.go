package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

const defaultProviderTimeout = 30 * time.Second

// EventPublisher публикует события жизненного цикла документа.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
}

// Orchestrator — точка входа pipeline выпуска.
//
// Все зависимости передаются явно: хранилище, брокер, обработчик
// попытки (Worker.Handle) и провайдер для отмены и сверки.
type Orchestrator struct {
	store    repo.DocumentStore
	broker   queue.Broker
	execute  queue.Handler
	provider provider.Provider
	events   EventPublisher

	options         queue.Options
	providerTimeout time.Duration

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store  repo.DocumentStore
	Broker queue.Broker

	// Execute — обработчик одной попытки. Вызывается синхронно,
	// когда брокер не принял задачу.
	Execute queue.Handler

	// Provider нужен для CancelDocument и VerifyDocument.
	Provider provider.Provider

	// Events (опционально).
	Events EventPublisher

	Options         queue.Options // параметры доставки (default: queue.DefaultOptions())
	ProviderTimeout time.Duration // таймаут отмены и сверки (default: 30s)

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	options := cfg.Options
	if options.MaxAttempts == 0 {
		options = queue.DefaultOptions()
	}

	providerTimeout := cfg.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:           cfg.Store,
		broker:          cfg.Broker,
		execute:         cfg.Execute,
		provider:        cfg.Provider,
		events:          cfg.Events,
		options:         options,
		providerTimeout: providerTimeout,
		logger:          logger,
	}
}

// Health — состояние очереди.
//
// Available=false отличает недоступный брокер от пустой очереди:
// счётчики в этом случае не заполняются.
type Health struct {
	Available bool  `json:"available"`
	Waiting   int64 `json:"waiting,omitempty"`
	Active    int64 `json:"active,omitempty"`
	Completed int64 `json:"completed,omitempty"`
	Failed    int64 `json:"failed,omitempty"`
}

// QueueHealth возвращает счётчики брокера. Никогда не возвращает ошибку.
func (o *Orchestrator) QueueHealth(ctx context.Context) Health {
	if o.broker == nil {
		return Health{Available: false}
	}

	counts, err := o.broker.Counts(ctx)
	if err != nil {
		o.logger.Warn("queue health unavailable", "error", err)
		return Health{Available: false}
	}

	telemetry.QueueJobs.WithLabelValues("waiting").Set(float64(counts.Waiting))
	telemetry.QueueJobs.WithLabelValues("active").Set(float64(counts.Active))
	telemetry.QueueJobs.WithLabelValues("completed").Set(float64(counts.Completed))
	telemetry.QueueJobs.WithLabelValues("failed").Set(float64(counts.Failed))

	return Health{
		Available: true,
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
	}
}

// publish отправляет событие, ошибки только логируются.
func (o *Orchestrator) publish(ctx context.Context, eventType string, doc *domain.IssuanceRecord) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishDocumentEvent(ctx, domain.NewDocumentEvent(eventType, doc)); err != nil {
		o.logger.Warn("failed to publish document event",
			"type", eventType,
			"document_id", doc.ID,
			"error", err,
		)
	}
}
