package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

// Handle выполняет одну попытку выпуска документа job.DocumentID.
//
// Порядок:
//  1. аренда документа (занята → ErrAttemptInFlight, запись не трогается)
//  2. загрузка записи; ISSUED/CANCELLED → no-op, FAILED → PROCESSING
//  3. сборка запроса из счёта и получателя
//  4. вызов провайдера с таймаутом
//  5. успех → ISSUED; отказ → FAILED (+1 к RetryCount) и ошибка наружу,
//     чтобы брокер запланировал следующую попытку
//
// Ошибка без изменения записи (store недоступен) тоже повторяется брокером.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	logger := telemetry.WithJobID(telemetry.WithDocumentID(w.logger, job.DocumentID.String()), job.ID).
		With("attempt", job.Attempt)

	release, err := w.acquireLease(ctx, job, logger)
	if err != nil {
		return err
	}
	defer release()

	doc, err := w.store.GetByID(ctx, job.DocumentID)
	if errors.Is(err, repo.ErrNotFound) {
		// повтор не поможет: записи нет
		logger.Error("document not found, dropping job")
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeNotFound).Inc()
		return nil
	}
	if err != nil {
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInfraError).Inc()
		return fmt.Errorf("load document: %w", err)
	}
	logger = telemetry.WithTenantID(logger, doc.TenantID)

	switch doc.Status {
	case domain.DocumentStatusProcessing:
	case domain.DocumentStatusFailed:
		// повтор по расписанию брокера: FAILED → PROCESSING
		doc.MarkRetrying()
		if err := w.store.Update(ctx, doc); err != nil {
			telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInfraError).Inc()
			return fmt.Errorf("mark retrying: %w", err)
		}
	default:
		logger.Info("document not awaiting issuance, skipping", "status", doc.Status)
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return nil
	}

	req, err := w.buildRequest(ctx, doc)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) && !errors.Is(err, provider.ErrInvalidRequest) {
			telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInfraError).Inc()
			return fmt.Errorf("build request: %w", err)
		}
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInvalidInput).Inc()
		return w.fail(ctx, doc, err.Error(), logger)
	}

	logger.Info("issuing document")
	res, callErr := w.issue(ctx, req)

	if callErr == nil && res.Issued() {
		return w.succeed(ctx, doc, res, logger)
	}

	msg := res.Failure()
	switch {
	case callErr != nil:
		msg = callErr.Error()
	case res != nil && res.Success:
		// без номера или протокола документ нельзя считать выпущенным
		msg = "provider returned incomplete result"
	}
	return w.fail(ctx, doc, msg, logger)
}

// acquireLease берёт аренду документа.
// Ошибка инфраструктуры аренды не блокирует попытку.
func (w *Worker) acquireLease(ctx context.Context, job queue.Job, logger *slog.Logger) (func(), error) {
	release, ok, err := w.lease.Acquire(ctx, job.DocumentID.String(), w.leaseTTL)
	if err != nil {
		logger.Warn("lease unavailable, proceeding without it", "error", err)
		return func() {}, nil
	}
	if !ok {
		logger.Info("another attempt holds the document lease")
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeLeaseBusy).Inc()
		return nil, fmt.Errorf("%w: document %s", ErrAttemptInFlight, job.DocumentID)
	}
	return release, nil
}

// buildRequest собирает запрос к провайдеру из справочников.
func (w *Worker) buildRequest(ctx context.Context, doc *domain.IssuanceRecord) (provider.Request, error) {
	billable, err := w.directory.GetBillable(ctx, doc.TenantID, doc.BillableReferenceID)
	if err != nil {
		return provider.Request{}, fmt.Errorf("billable %s: %w", doc.BillableReferenceID, err)
	}
	subject, err := w.directory.GetSubject(ctx, doc.TenantID, doc.SubjectID)
	if err != nil {
		return provider.Request{}, fmt.Errorf("subject %s: %w", doc.SubjectID, err)
	}

	issueDate := billable.ServiceDate
	if issueDate.IsZero() {
		issueDate = time.Now().UTC()
	}

	req := provider.Request{
		TenantID:           doc.TenantID,
		Reference:          doc.ID.String(),
		SubjectName:        subject.Name,
		SubjectTaxID:       subject.TaxID,
		ServiceDescription: billable.Description,
		AmountCents:        billable.AmountCents,
		IssueDate:          issueDate,
	}
	if err := req.Validate(); err != nil {
		return provider.Request{}, err
	}
	return req, nil
}

// issue вызывает провайдера с таймаутом.
func (w *Worker) issue(ctx context.Context, req provider.Request) (*provider.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	defer cancel()

	start := time.Now()
	res, err := w.provider.Issue(callCtx, req)
	telemetry.ProviderCallDuration.WithLabelValues("issue").Observe(time.Since(start).Seconds())
	return res, err
}

func (w *Worker) succeed(ctx context.Context, doc *domain.IssuanceRecord, res *provider.Result, logger *slog.Logger) error {
	artifactURL := res.ArtifactURL
	if artifactURL == "" && w.artifactBaseURL != "" {
		artifactURL = ArtifactURL(w.artifactBaseURL, doc)
	}

	doc.MarkIssued(domain.IssueResult{
		DocumentNumber:  res.DocumentNumber,
		Protocol:        res.Protocol,
		RawDocumentBody: res.RawDocumentBody,
		ArtifactURL:     artifactURL,
	})

	if err := w.store.Update(ctx, doc); err != nil {
		// провайдер уже выпустил документ; повтор может вызвать его ещё раз
		logger.Error("failed to persist issued document", "document_number", res.DocumentNumber, "error", err)
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInfraError).Inc()
		return fmt.Errorf("persist issued document: %w", err)
	}

	logger.Info("document issued", "document_number", res.DocumentNumber, "protocol", res.Protocol)
	telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeIssued).Inc()
	w.publish(ctx, domain.EventDocumentIssued, doc, logger)
	return nil
}

func (w *Worker) fail(ctx context.Context, doc *domain.IssuanceRecord, msg string, logger *slog.Logger) error {
	doc.MarkFailed(msg)

	if err := w.store.Update(ctx, doc); err != nil {
		logger.Error("failed to persist failed attempt", "error", err)
		telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeInfraError).Inc()
		return fmt.Errorf("persist failed attempt: %w", err)
	}

	logger.Warn("issuance attempt failed", "retry_count", doc.RetryCount, "error", msg)
	telemetry.IssuanceAttempts.WithLabelValues(telemetry.OutcomeFailed).Inc()
	w.publish(ctx, domain.EventDocumentFailed, doc, logger)

	return fmt.Errorf("%w: %s", ErrProviderFailure, msg)
}

// publish отправляет событие. Ошибка публикации не влияет на попытку.
func (w *Worker) publish(ctx context.Context, eventType string, doc *domain.IssuanceRecord, logger *slog.Logger) {
	if w.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.events.PublishDocumentEvent(pubCtx, domain.NewDocumentEvent(eventType, doc)); err != nil {
		logger.Warn("failed to publish document event", "type", eventType, "error", err)
	}
}

// ArtifactURL — ссылка на печатную форму документа в API.
func ArtifactURL(baseURL string, doc *domain.IssuanceRecord) string {
	return fmt.Sprintf("%s/api/v1/tenants/%s/documents/%s/pdf",
		strings.TrimRight(baseURL, "/"), doc.TenantID, doc.ID)
}
