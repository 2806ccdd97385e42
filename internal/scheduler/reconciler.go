package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultStaleAfter = 15 * time.Minute
	defaultBatchSize  = 100
)

// Dispatcher отправляет документ на выпуск (Orchestrator.Dispatch).
type Dispatcher interface {
	Dispatch(ctx context.Context, doc *domain.IssuanceRecord) (*domain.IssuanceRecord, error)
}

// Reconciler переотправляет документы, зависшие в PROCESSING.
//
// Документ зависает, если процесс упал между созданием записи и
// постановкой в очередь или брокер потерял сообщение.
type Reconciler struct {
	store      repo.DocumentStore
	dispatcher Dispatcher
	staleAfter time.Duration
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
}

// ReconcilerConfig — конфигурация Reconciler.
type ReconcilerConfig struct {
	Store      repo.DocumentStore
	Dispatcher Dispatcher
	StaleAfter time.Duration // возраст PROCESSING записи (default: 15m)
	BatchSize  int           // документов за один тик (default: 100)
	Logger     *slog.Logger
}

// NewReconciler создаёт Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// Tick выполняет один проход.
//
// Ошибка одного документа не блокирует обработку остальных.
// Возвращает количество переотправленных документов.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	before := r.now().Add(-r.staleAfter)

	docs, err := r.store.ListStale(ctx, before, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	r.logger.Debug("found stale documents", "count", len(docs))

	var dispatched int
	for i := range docs {
		doc := &docs[i]
		if ctx.Err() != nil {
			break
		}

		if _, err := r.dispatcher.Dispatch(ctx, doc); err != nil {
			r.logger.Error("failed to re-dispatch document",
				"document_id", doc.ID,
				"tenant_id", doc.TenantID,
				"error", err,
			)
			continue
		}

		dispatched++
		telemetry.ReconciledDocuments.Inc()
	}

	r.logger.Info("reconcile tick completed",
		"stale", len(docs),
		"dispatched", dispatched,
	)

	return dispatched, ctx.Err()
}
