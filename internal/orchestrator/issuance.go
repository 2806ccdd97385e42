package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

// RequestIssuance создаёт запись в PROCESSING и отправляет её на выпуск.
//
// Если для счёта уже есть запись, она возвращается без изменений.
// Если брокер недоступен, одна попытка выполняется синхронно и
// возвращается её результат. Ошибка попытки записывается в документ
// и вызывающему не возвращается.
func (o *Orchestrator) RequestIssuance(ctx context.Context, tenantID, billableReferenceID, subjectID string) (*domain.IssuanceRecord, error) {
	tenantID = strings.TrimSpace(tenantID)
	billableReferenceID = strings.TrimSpace(billableReferenceID)
	subjectID = strings.TrimSpace(subjectID)

	var missing []string
	if tenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if billableReferenceID == "" {
		missing = append(missing, "billable_reference_id")
	}
	if subjectID == "" {
		missing = append(missing, "subject_id")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	existing, err := o.store.GetByBillable(ctx, tenantID, billableReferenceID)
	if err == nil {
		telemetry.IssuanceRequests.WithLabelValues(telemetry.PathExisting).Inc()
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup billable: %w", err)
	}

	doc := domain.NewIssuanceRecord(tenantID, billableReferenceID, subjectID)
	if err := o.store.Create(ctx, doc); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			// параллельный запрос успел создать запись
			existing, getErr := o.store.GetByBillable(ctx, tenantID, billableReferenceID)
			if getErr == nil {
				telemetry.IssuanceRequests.WithLabelValues(telemetry.PathExisting).Inc()
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	o.logger.Info("issuance requested",
		"document_id", doc.ID,
		"tenant_id", tenantID,
		"billable_reference_id", billableReferenceID,
	)

	result, path, err := o.dispatch(ctx, doc)
	if err != nil {
		return nil, err
	}
	telemetry.IssuanceRequests.WithLabelValues(path).Inc()
	return result, nil
}

// RetryIssuance возвращает FAILED документ в PROCESSING и отправляет
// его на новую попытку. RetryCount и LastError не сбрасываются.
func (o *Orchestrator) RetryIssuance(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error) {
	doc, err := o.getForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(doc.Status, domain.DocumentStatusProcessing) {
		return nil, fmt.Errorf("%w: cannot retry document in status %s", ErrInvalidTransition, doc.Status)
	}

	doc.MarkRetrying()
	if err := o.store.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	o.logger.Info("issuance retry requested",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"retry_count", doc.RetryCount,
	)

	result, path, err := o.dispatch(ctx, doc)
	if err != nil {
		return nil, err
	}
	telemetry.IssuanceRequests.WithLabelValues(path).Inc()
	return result, nil
}

// Dispatch отправляет PROCESSING документ на выпуск тем же путём, что и
// RequestIssuance. Используется reconciler'ом для зависших документов.
func (o *Orchestrator) Dispatch(ctx context.Context, doc *domain.IssuanceRecord) (*domain.IssuanceRecord, error) {
	result, _, err := o.dispatch(ctx, doc)
	return result, err
}

// dispatch ставит задачу в брокер, а при ошибке постановки выполняет
// одну попытку синхронно. Возвращает актуальную запись и путь обработки.
func (o *Orchestrator) dispatch(ctx context.Context, doc *domain.IssuanceRecord) (*domain.IssuanceRecord, string, error) {
	job := queue.NewIssuanceJob(doc.TenantID, doc.ID)

	enqueueErr := queue.ErrUnavailable
	if o.broker != nil {
		handle, err := o.broker.Enqueue(ctx, job, o.options)
		if err == nil {
			o.logger.Debug("issuance job enqueued",
				"document_id", doc.ID,
				"job_id", handle.JobID,
				"queue", handle.Queue,
			)
			return doc, telemetry.PathQueued, nil
		}
		enqueueErr = err
	}

	telemetry.EnqueueFailures.Inc()

	if o.execute == nil {
		o.logger.Error("broker unavailable and no inline executor configured",
			"document_id", doc.ID,
			"error", enqueueErr,
		)
		return nil, "", fmt.Errorf("dispatch document %s: %w", doc.ID, enqueueErr)
	}

	o.logger.Warn("broker unavailable, running attempt inline",
		"document_id", doc.ID,
		"error", enqueueErr,
	)

	// единственная попытка: повторять её без брокера некому
	job.Attempt = 1
	if err := o.execute(ctx, job); err != nil {
		o.logger.Info("inline attempt failed",
			"document_id", doc.ID,
			"error", err,
		)
	}

	current, err := o.store.GetByID(ctx, doc.ID)
	if err != nil {
		o.logger.Warn("failed to reload document after inline attempt",
			"document_id", doc.ID,
			"error", err,
		)
		return doc, telemetry.PathFallback, nil
	}
	return current, telemetry.PathFallback, nil
}

// getForTenant загружает документ, скрывая чужие документы как отсутствующие.
func (o *Orchestrator) getForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error) {
	doc, err := o.store.GetForTenant(ctx, tenantID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}
