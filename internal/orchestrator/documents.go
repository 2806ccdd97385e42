package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

// GetDocument возвращает документ tenant'а.
func (o *Orchestrator) GetDocument(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error) {
	return o.getForTenant(ctx, tenantID, id)
}

// ListDocuments возвращает документы tenant'а, новые первыми.
func (o *Orchestrator) ListDocuments(ctx context.Context, tenantID string, filter repo.DocumentFilter) ([]domain.IssuanceRecord, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}

	docs, err := o.store.ListByTenant(ctx, tenantID, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CancelDocument отменяет выпущенный документ у провайдера и
// переводит запись в CANCELLED. При отказе провайдера запись не меняется.
func (o *Orchestrator) CancelDocument(ctx context.Context, tenantID string, id uuid.UUID, reason string) (*domain.IssuanceRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: missing reason", ErrInvalidRequest)
	}

	doc, err := o.getForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(doc.Status, domain.DocumentStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel document in status %s", ErrInvalidTransition, doc.Status)
	}

	res, err := o.callProvider(ctx, "cancel", func(ctx context.Context) (*provider.Result, error) {
		return o.provider.Cancel(ctx, domain.Deref(doc.DocumentNumber), reason)
	})
	if err != nil {
		return nil, err
	}

	doc.MarkCancelled(reason)
	if err := o.store.Update(ctx, doc); err != nil {
		// у провайдера документ уже отменён
		o.logger.Error("failed to persist cancelled document",
			"document_id", doc.ID,
			"document_number", domain.Deref(doc.DocumentNumber),
			"error", err,
		)
		return nil, fmt.Errorf("update document: %w", err)
	}

	o.logger.Info("document cancelled",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"protocol", res.Protocol,
	)
	o.publish(ctx, domain.EventDocumentCancelled, doc)
	return doc, nil
}

// VerifyDocument запрашивает у провайдера состояние выпущенного документа.
// Запись не меняется.
func (o *Orchestrator) VerifyDocument(ctx context.Context, tenantID string, id uuid.UUID) (*provider.Result, error) {
	doc, err := o.getForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.DocumentStatusIssued {
		return nil, fmt.Errorf("%w: status %s", ErrNotIssued, doc.Status)
	}

	return o.callProvider(ctx, "query", func(ctx context.Context) (*provider.Result, error) {
		return o.provider.Query(ctx, domain.Deref(doc.DocumentNumber))
	})
}

// callProvider вызывает провайдера с таймаутом.
// Неуспешный результат превращается в ErrProviderRejected.
func (o *Orchestrator) callProvider(ctx context.Context, operation string, call func(context.Context) (*provider.Result, error)) (*provider.Result, error) {
	if o.provider == nil {
		return nil, fmt.Errorf("%s: %w", operation, provider.ErrUnknownProvider)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	res, err := call(callCtx)
	telemetry.ProviderCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if res == nil || !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, res.Failure())
	}
	return res, nil
}
